package vectordb

import (
	"context"
	"fmt"

	"github.com/Luiz-Frias/semcode/internal/domain"
	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/ports"
)

// FixedDim enforces one vector dimension across create, insert and search.
// Mismatched vectors are rejected with core:invalid_input before they can
// reach the inner port.
type FixedDim struct {
	inner     ports.VectorDB
	dimension int
}

var _ ports.VectorDB = (*FixedDim)(nil)

// NewFixedDim wraps inner with a dimension guard.
func NewFixedDim(inner ports.VectorDB, dimension int) (*FixedDim, error) {
	if dimension <= 0 {
		return nil, errors.InvalidInput("dimension must be positive")
	}
	return &FixedDim{inner: inner, dimension: dimension}, nil
}

// Dimension returns the enforced dimension.
func (f *FixedDim) Dimension() int { return f.dimension }

// ProviderID identifies the wrapped adapter.
func (f *FixedDim) ProviderID() domain.VectorDBProviderID { return f.inner.ProviderID() }

func (f *FixedDim) checkVector(vector []float32) error {
	if len(vector) != f.dimension {
		return errors.InvalidInput("vector dimension does not match collection dimension").
			WithMeta("want", fmt.Sprint(f.dimension)).
			WithMeta("got", fmt.Sprint(len(vector)))
	}
	return nil
}

func (f *FixedDim) checkDocs(docs []ports.VectorDocument) error {
	for _, doc := range docs {
		if err := f.checkVector(doc.Vector); err != nil {
			return err
		}
	}
	return nil
}

// HasCollection passes through.
func (f *FixedDim) HasCollection(ctx context.Context, name domain.CollectionName) (bool, error) {
	return f.inner.HasCollection(ctx, name)
}

// CreateCollection forces the guarded dimension into the options.
func (f *FixedDim) CreateCollection(ctx context.Context, name domain.CollectionName, opts ports.CollectionOptions) error {
	if opts.Dimension != 0 && opts.Dimension != f.dimension {
		return errors.InvalidInput("collection dimension does not match wrapper dimension").
			WithMeta("want", fmt.Sprint(f.dimension)).
			WithMeta("got", fmt.Sprint(opts.Dimension))
	}
	opts.Dimension = f.dimension
	return f.inner.CreateCollection(ctx, name, opts)
}

// CreateHybridCollection forces the guarded dimension into the options.
func (f *FixedDim) CreateHybridCollection(ctx context.Context, name domain.CollectionName, opts ports.CollectionOptions) error {
	if opts.Dimension != 0 && opts.Dimension != f.dimension {
		return errors.InvalidInput("collection dimension does not match wrapper dimension").
			WithMeta("want", fmt.Sprint(f.dimension)).
			WithMeta("got", fmt.Sprint(opts.Dimension))
	}
	opts.Dimension = f.dimension
	return f.inner.CreateHybridCollection(ctx, name, opts)
}

// DropCollection passes through.
func (f *FixedDim) DropCollection(ctx context.Context, name domain.CollectionName) error {
	return f.inner.DropCollection(ctx, name)
}

// Insert validates every vector before delegating.
func (f *FixedDim) Insert(ctx context.Context, name domain.CollectionName, docs []ports.VectorDocument) error {
	if err := f.checkDocs(docs); err != nil {
		return err
	}
	return f.inner.Insert(ctx, name, docs)
}

// InsertHybrid validates every vector before delegating.
func (f *FixedDim) InsertHybrid(ctx context.Context, name domain.CollectionName, docs []ports.VectorDocument) error {
	if err := f.checkDocs(docs); err != nil {
		return err
	}
	return f.inner.InsertHybrid(ctx, name, docs)
}

// Search validates the query vector before delegating.
func (f *FixedDim) Search(ctx context.Context, name domain.CollectionName, vector []float32, topK int) ([]ports.SearchResult, error) {
	if err := f.checkVector(vector); err != nil {
		return nil, err
	}
	return f.inner.Search(ctx, name, vector, topK)
}

// HybridSearch validates the query vector before delegating.
func (f *FixedDim) HybridSearch(ctx context.Context, name domain.CollectionName, vector []float32, queryText string, topK int) ([]ports.SearchResult, error) {
	if err := f.checkVector(vector); err != nil {
		return nil, err
	}
	return f.inner.HybridSearch(ctx, name, vector, queryText, topK)
}

// Delete passes through.
func (f *FixedDim) Delete(ctx context.Context, name domain.CollectionName, ids []domain.DocumentID) error {
	return f.inner.Delete(ctx, name, ids)
}

// Query passes through (no vectors involved).
func (f *FixedDim) Query(ctx context.Context, name domain.CollectionName, filter ports.Filter, outputFields []string, limit int) ([]ports.VectorDocument, error) {
	return f.inner.Query(ctx, name, filter, outputFields, limit)
}

// Close passes through.
func (f *FixedDim) Close() error { return f.inner.Close() }

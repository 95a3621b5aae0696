// Package ports declares the interfaces the pipeline core consumes and
// the DTOs that cross them. Adapters live under internal/embed,
// internal/vectordb, internal/fsys, internal/splitter and
// internal/filesync.
package ports

import (
	"context"

	"github.com/Luiz-Frias/semcode/internal/domain"
)

// Embedder produces dense vectors for text.
//
// Contract: inputs are sanitized by the adapter (empty text embeds as a
// single space); the output slice length equals the input length; every
// vector has the provider dimension; cancellation is observed between
// request send and response receive.
type Embedder interface {
	// ProviderID identifies the adapter.
	ProviderID() domain.EmbeddingProviderID

	// Model returns the model identifier used for cache namespacing.
	Model() string

	// DetectDimension probes the provider for its vector dimension.
	DetectDimension(ctx context.Context) (int, error)

	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, order preserved.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Close releases resources.
	Close() error
}

// VectorDocument is one stored vector with its content and metadata.
type VectorDocument struct {
	ID       domain.DocumentID    `json:"id"`
	Vector   []float32            `json:"vector"`
	Content  string               `json:"content"`
	Metadata domain.ChunkMetadata `json:"metadata"`
}

// SearchResult is a ranked hit from a vector search.
type SearchResult struct {
	Document VectorDocument `json:"document"`
	Score    float32        `json:"score"`
}

// IndexParams configures an index built at collection creation.
type IndexParams struct {
	IndexType  string            `json:"indexType"`
	MetricType string            `json:"metricType"`
	Params     map[string]string `json:"params,omitempty"`
}

// CollectionOptions parameterize collection creation.
type CollectionOptions struct {
	Dimension int
	Dense     IndexParams
	// Sparse is only consulted for hybrid collections.
	Sparse IndexParams
}

// Filter is a provider-escaped equality filter over one metadata field.
type Filter struct {
	Field  string
	Equals string
}

// VectorDB is the vector database port. Implementations must be safe for
// concurrent inserts.
type VectorDB interface {
	// ProviderID identifies the adapter.
	ProviderID() domain.VectorDBProviderID

	// HasCollection reports whether a collection exists.
	HasCollection(ctx context.Context, name domain.CollectionName) (bool, error)

	// CreateCollection creates a dense collection.
	CreateCollection(ctx context.Context, name domain.CollectionName, opts CollectionOptions) error

	// CreateHybridCollection creates a dense + sparse collection.
	CreateHybridCollection(ctx context.Context, name domain.CollectionName, opts CollectionOptions) error

	// DropCollection removes a collection. Dropping an absent collection
	// is not an error.
	DropCollection(ctx context.Context, name domain.CollectionName) error

	// Insert stores documents in a dense collection. Atomic per batch.
	Insert(ctx context.Context, name domain.CollectionName, docs []VectorDocument) error

	// InsertHybrid stores documents in a hybrid collection.
	InsertHybrid(ctx context.Context, name domain.CollectionName, docs []VectorDocument) error

	// Search returns the topK nearest documents for a query vector.
	Search(ctx context.Context, name domain.CollectionName, vector []float32, topK int) ([]SearchResult, error)

	// HybridSearch fuses dense similarity with sparse lexical scoring.
	HybridSearch(ctx context.Context, name domain.CollectionName, vector []float32, queryText string, topK int) ([]SearchResult, error)

	// Delete removes documents by id.
	Delete(ctx context.Context, name domain.CollectionName, ids []domain.DocumentID) error

	// Query returns documents matching the filter, projected to
	// outputFields, up to limit.
	Query(ctx context.Context, name domain.CollectionName, filter Filter, outputFields []string, limit int) ([]VectorDocument, error)

	// Close releases resources.
	Close() error
}

// DirEntry is one filesystem directory entry.
type DirEntry struct {
	Name  string
	IsDir bool
}

// FileStat is the subset of stat the pipeline needs.
type FileStat struct {
	Size      int64
	IsDir     bool
	ModTimeMs int64
}

// FileSystem abstracts file access so the pipeline can be driven against
// fixtures. All relative paths must have passed PathPolicy first.
type FileSystem interface {
	// ReadDir lists a directory, sorted by name.
	ReadDir(ctx context.Context, path string) ([]DirEntry, error)

	// ReadFileText reads a file as UTF-8 text, rejecting files larger
	// than maxBytes when maxBytes > 0.
	ReadFileText(ctx context.Context, path string, maxBytes int64) (string, error)

	// Stat returns file metadata.
	Stat(ctx context.Context, path string) (FileStat, error)
}

// PathPolicy guards every relative path that enters the pipeline.
type PathPolicy interface {
	// ValidateRelative rejects absolute paths, traversal ("..") and, by
	// default, anything under the state dir (.context/).
	ValidateRelative(path string) error
}

// Ignore answers whether a normalized relative path is excluded.
type Ignore interface {
	Ignored(relativePath string, isDir bool) bool
}

// Splitter turns file content into code-aware chunks.
type Splitter interface {
	Split(ctx context.Context, content string, language domain.Language, filePath string) ([]domain.CodeChunk, error)
}

// FileChangeSet lists relative paths changed since the last snapshot.
// The three sets are disjoint, sorted and deduplicated.
type FileChangeSet struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// Empty reports whether no changes are present.
func (c FileChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}

// FileSyncInitOptions configure snapshot initialization.
type FileSyncInitOptions struct {
	// IgnorePatterns are the caller's ignore patterns; the adapter adds
	// the forced .context/ entry.
	IgnorePatterns []string
}

// FileSync maintains the Merkle snapshot per codebase root.
type FileSync interface {
	// Initialize loads the previous snapshot when storage is enabled.
	Initialize(ctx context.Context, opts FileSyncInitOptions) error

	// CheckForChanges walks the tree, rebuilds the DAG, compares it with
	// the previous snapshot and persists the new one.
	CheckForChanges(ctx context.Context) (FileChangeSet, error)

	// DeleteSnapshot removes the persisted snapshot. Idempotent.
	DeleteSnapshot(ctx context.Context) error
}

// Telemetry is the metric/span sink consumed by the core.
type Telemetry interface {
	// Counter increments a named counter.
	Counter(name string, value float64, tags map[string]string)

	// Timer records a duration in milliseconds.
	Timer(name string, durationMs float64, tags map[string]string)

	// SpanStart opens a span; the returned func closes it.
	SpanStart(name string) func()
}

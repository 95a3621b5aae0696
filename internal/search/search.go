// Package search implements the read path: embed the query, run a
// vector (or hybrid) search, rank and map results.
package search

import (
	"strconv"
	"strings"

	"github.com/Luiz-Frias/semcode/internal/domain"
	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/ports"
	"github.com/Luiz-Frias/semcode/internal/reqctx"
)

// DefaultTopK is the default result count.
const DefaultTopK = 10

// MaxQueryChars bounds accepted query length.
const MaxQueryChars = 4096

// Options tune one search.
type Options struct {
	TopK   int
	Hybrid bool
}

// Result is one ranked hit.
type Result struct {
	ChunkID      string  `json:"chunkId"`
	RelativePath string  `json:"relativePath"`
	StartLine    uint32  `json:"startLine"`
	EndLine      uint32  `json:"endLine"`
	Language     string  `json:"language"`
	Content      string  `json:"content"`
	Score        float32 `json:"score"`
}

// Run executes a semantic search against a collection.
func Run(req *reqctx.Request, embedder ports.Embedder, db ports.VectorDB, collection domain.CollectionName, query string, opts Options) ([]Result, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, errors.InvalidInput("query must be non-empty")
	}
	if len(trimmed) > MaxQueryChars {
		return nil, errors.InvalidInput("query is too long").
			WithMeta("maxChars", strconv.Itoa(MaxQueryChars))
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}

	if err := req.EnsureNotCancelled("search.embed_query"); err != nil {
		return nil, err
	}
	vector, err := embedder.Embed(req.Context(), trimmed)
	if err != nil {
		return nil, err
	}

	if err := req.EnsureNotCancelled("search.vector_search"); err != nil {
		return nil, err
	}
	var hits []ports.SearchResult
	if opts.Hybrid {
		hits, err = db.HybridSearch(req.Context(), collection, vector, trimmed, opts.TopK)
	} else {
		hits, err = db.Search(req.Context(), collection, vector, opts.TopK)
	}
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			ChunkID:      hit.Document.ID.String(),
			RelativePath: hit.Document.Metadata.RelativePath,
			StartLine:    hit.Document.Metadata.StartLine,
			EndLine:      hit.Document.Metadata.EndLine,
			Language:     hit.Document.Metadata.Language.String(),
			Content:      hit.Document.Content,
			Score:        hit.Score,
		})
	}
	return results, nil
}


package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"

	"github.com/Luiz-Frias/semcode/internal/domain"
	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/ports"
)

// StaticDimensions is the vector dimension of the static embedder.
const StaticDimensions = 256

// tokenRegex matches alphanumeric token sequences.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// Static is a deterministic hash-based embedder. It needs no network and
// no model download, which makes it the provider behind the "test" id and
// the integration-test fixtures. Semantic quality is limited to token
// overlap.
type Static struct {
	mu     sync.RWMutex
	closed bool
}

var _ ports.Embedder = (*Static)(nil)

// NewStatic creates a static embedder.
func NewStatic() *Static {
	return &Static{}
}

// ProviderID identifies the adapter.
func (e *Static) ProviderID() domain.EmbeddingProviderID { return "test" }

// Model returns the model identifier.
func (e *Static) Model() string { return "static-fnv-256" }

// DetectDimension returns the fixed dimension.
func (e *Static) DetectDimension(ctx context.Context) (int, error) {
	return StaticDimensions, nil
}

// Embed generates the embedding for a single text.
func (e *Static) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *Static) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, errors.Invariant("embedder is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled("embed_batch").WithCause(err)
	}

	texts = Sanitize(texts)
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = hashVector(text)
	}
	return vectors, nil
}

// Close releases resources.
func (e *Static) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// hashVector spreads token hashes over the vector dimensions.
func hashVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)
	tokens := tokenRegex.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		return vector
	}
	for _, token := range tokens {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(token))
		sum := hasher.Sum32()
		vector[sum%StaticDimensions] += 1
		vector[(sum>>8)%StaticDimensions] += 0.5
	}
	return normalizeVector(vector)
}

package embed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Luiz-Frias/semcode/internal/domain"
	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/ports"
	"github.com/Luiz-Frias/semcode/internal/redact"
)

// Voyage defaults.
const (
	DefaultVoyageBaseURL = "https://api.voyageai.com/v1"
	DefaultVoyageModel   = "voyage-code-3"
)

// VoyageConfig configures the Voyage adapter.
type VoyageConfig struct {
	APIKey    redact.Secret
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// Voyage generates embeddings via the Voyage AI embeddings API.
type Voyage struct {
	client *http.Client
	config VoyageConfig
}

var _ ports.Embedder = (*Voyage)(nil)

// NewVoyage creates a Voyage embedder.
func NewVoyage(cfg VoyageConfig) *Voyage {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultVoyageBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultVoyageModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Voyage{client: &http.Client{}, config: cfg}
}

// ProviderID identifies the adapter.
func (e *Voyage) ProviderID() domain.EmbeddingProviderID { return "voyage" }

// Model returns the model identifier.
func (e *Voyage) Model() string { return e.config.Model }

// DetectDimension returns the configured dimension or probes the API.
func (e *Voyage) DetectDimension(ctx context.Context) (int, error) {
	if e.config.Dimension > 0 {
		return e.config.Dimension, nil
	}
	vectors, err := e.EmbedBatch(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, err
	}
	return len(vectors[0]), nil
}

// Embed generates an embedding for a single text.
func (e *Voyage) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type voyageEmbedRequest struct {
	Input           []string `json:"input"`
	Model           string   `json:"model"`
	OutputDimension int      `json:"output_dimension,omitempty"`
}

type voyageEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// EmbedBatch generates embeddings for multiple texts.
func (e *Voyage) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	texts = Sanitize(texts)

	request := voyageEmbedRequest{
		Input:           texts,
		Model:           e.config.Model,
		OutputDimension: e.config.Dimension,
	}
	headers := map[string]string{"Authorization": "Bearer " + e.config.APIKey.Expose()}

	var decoded voyageEmbedResponse
	if err := postJSON(ctx, e.client, e.config.Timeout, e.config.BaseURL+"/embeddings", headers, request, &decoded, "voyage.embed_batch"); err != nil {
		return nil, err
	}
	if len(decoded.Data) != len(texts) {
		return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeEmbeddingBadResponse,
			"embedding count does not match input count").
			WithMeta("want", fmt.Sprint(len(texts))).
			WithMeta("got", fmt.Sprint(len(decoded.Data)))
	}

	vectors := make([][]float32, len(texts))
	for _, data := range decoded.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeEmbeddingBadResponse,
				"embedding index out of range")
		}
		if e.config.Dimension > 0 && len(data.Embedding) != e.config.Dimension {
			return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeEmbeddingDimension,
				"embedding dimension does not match configuration")
		}
		vectors[data.Index] = data.Embedding
	}
	for i, vector := range vectors {
		if vector == nil {
			return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeEmbeddingBadResponse,
				"missing embedding in response").WithMeta("index", fmt.Sprint(i))
		}
	}
	return vectors, nil
}

// Close releases resources.
func (e *Voyage) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

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

// Gemini defaults.
const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "text-embedding-004"
)

// GeminiConfig configures the Gemini adapter.
type GeminiConfig struct {
	APIKey    redact.Secret
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// Gemini generates embeddings via the Gemini batchEmbedContents API.
type Gemini struct {
	client *http.Client
	config GeminiConfig
}

var _ ports.Embedder = (*Gemini)(nil)

// NewGemini creates a Gemini embedder.
func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Gemini{client: &http.Client{}, config: cfg}
}

// ProviderID identifies the adapter.
func (e *Gemini) ProviderID() domain.EmbeddingProviderID { return "gemini" }

// Model returns the model identifier.
func (e *Gemini) Model() string { return e.config.Model }

// DetectDimension returns the configured dimension or probes the API.
func (e *Gemini) DetectDimension(ctx context.Context) (int, error) {
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
func (e *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiEmbedRequest struct {
	Model                string        `json:"model"`
	Content              geminiContent `json:"content"`
	OutputDimensionality int           `json:"outputDimensionality,omitempty"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// EmbedBatch generates embeddings for multiple texts.
func (e *Gemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	texts = Sanitize(texts)

	model := "models/" + e.config.Model
	request := geminiBatchRequest{Requests: make([]geminiEmbedRequest, 0, len(texts))}
	for _, text := range texts {
		request.Requests = append(request.Requests, geminiEmbedRequest{
			Model:                model,
			Content:              geminiContent{Parts: []geminiPart{{Text: text}}},
			OutputDimensionality: e.config.Dimension,
		})
	}

	url := fmt.Sprintf("%s/%s:batchEmbedContents", e.config.BaseURL, model)
	headers := map[string]string{"x-goog-api-key": e.config.APIKey.Expose()}

	var decoded geminiBatchResponse
	if err := postJSON(ctx, e.client, e.config.Timeout, url, headers, request, &decoded, "gemini.embed_batch"); err != nil {
		return nil, err
	}
	if len(decoded.Embeddings) != len(texts) {
		return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeEmbeddingBadResponse,
			"embedding count does not match input count").
			WithMeta("want", fmt.Sprint(len(texts))).
			WithMeta("got", fmt.Sprint(len(decoded.Embeddings)))
	}

	vectors := make([][]float32, len(decoded.Embeddings))
	for i, embedding := range decoded.Embeddings {
		if e.config.Dimension > 0 && len(embedding.Values) != e.config.Dimension {
			return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeEmbeddingDimension,
				"embedding dimension does not match configuration").
				WithMeta("want", fmt.Sprint(e.config.Dimension)).
				WithMeta("got", fmt.Sprint(len(embedding.Values)))
		}
		vectors[i] = embedding.Values
	}
	return vectors, nil
}

// Close releases resources.
func (e *Gemini) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

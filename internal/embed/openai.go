package embed

import (
	"context"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/Luiz-Frias/semcode/internal/domain"
	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/ports"
	"github.com/Luiz-Frias/semcode/internal/redact"
)

// DefaultOpenAIModel is the default embedding model.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	APIKey    redact.Secret
	BaseURL   string
	Model     string
	Dimension int
}

// OpenAI generates embeddings via the OpenAI embeddings API.
type OpenAI struct {
	client openai.Client
	config OpenAIConfig
}

var _ ports.Embedder = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI embedder.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey.Expose())}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{client: openai.NewClient(opts...), config: cfg}
}

// ProviderID identifies the adapter.
func (e *OpenAI) ProviderID() domain.EmbeddingProviderID { return "openai" }

// Model returns the model identifier.
func (e *OpenAI) Model() string { return e.config.Model }

// DetectDimension returns the configured dimension or probes the API.
func (e *OpenAI) DetectDimension(ctx context.Context) (int, error) {
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
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	texts = Sanitize(texts)

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.config.Model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if e.config.Dimension > 0 {
		params.Dimensions = openai.Int(int64(e.config.Dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Cancelled("openai.embed_batch").WithCause(ctx.Err())
		}
		return nil, errors.Unexpected(errors.ClassRetriable, errors.CodeEmbeddingRequestFailed, err.Error()).WithCause(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeEmbeddingBadResponse,
			"embedding count does not match input count")
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vector := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vector[j] = float32(v)
		}
		if e.config.Dimension > 0 && len(vector) != e.config.Dimension {
			return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeEmbeddingDimension,
				"embedding dimension does not match configuration")
		}
		vectors[i] = vector
	}
	return vectors, nil
}

// Close releases resources.
func (e *OpenAI) Close() error { return nil }

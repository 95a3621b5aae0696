package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Luiz-Frias/semcode/internal/domain"
	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/ports"
)

// Ollama defaults.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
)

// OllamaConfig configures the Ollama adapter.
type OllamaConfig struct {
	Host      string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// Ollama generates embeddings via Ollama's HTTP API.
type Ollama struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
}

var _ ports.Embedder = (*Ollama)(nil)

// NewOllama creates an Ollama embedder.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     10 * time.Second,
	}
	// No http.Client.Timeout: per-request context timeouts drive
	// deadlines so cancellation stays observable mid-flight.
	return &Ollama{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}
}

// ProviderID identifies the adapter.
func (e *Ollama) ProviderID() domain.EmbeddingProviderID { return "ollama" }

// Model returns the model identifier.
func (e *Ollama) Model() string { return e.config.Model }

// DetectDimension returns the configured dimension or probes the API.
func (e *Ollama) DetectDimension(ctx context.Context) (int, error) {
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
func (e *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbedBatch generates embeddings for multiple texts.
func (e *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	texts = Sanitize(texts)

	payload, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, errors.Invariant("failed to encode embed request").WithCause(err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Invariant("failed to build embed request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Cancelled("ollama.embed_batch").WithCause(ctx.Err())
		}
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, errors.Timeout("ollama.embed_batch").WithCause(err)
		}
		return nil, errors.Unexpected(errors.ClassRetriable, errors.CodeEmbeddingRequestFailed, err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.IO(err).WithMeta("operation", "ollama.read_body")
	}
	if resp.StatusCode != http.StatusOK {
		class := errors.ClassNonRetriable
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			class = errors.ClassRetriable
		}
		return nil, errors.Unexpected(class, errors.CodeEmbeddingRequestFailed,
			fmt.Sprintf("ollama returned status %d", resp.StatusCode)).
			WithMeta("status", fmt.Sprint(resp.StatusCode))
	}

	var decoded ollamaEmbedResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeEmbeddingBadResponse,
			"failed to decode embed response").WithCause(err)
	}
	if len(decoded.Embeddings) != len(texts) {
		return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeEmbeddingBadResponse,
			"embedding count does not match input count").
			WithMeta("want", fmt.Sprint(len(texts))).
			WithMeta("got", fmt.Sprint(len(decoded.Embeddings)))
	}
	if e.config.Dimension > 0 {
		for _, vector := range decoded.Embeddings {
			if len(vector) != e.config.Dimension {
				return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeEmbeddingDimension,
					"embedding dimension does not match configuration").
					WithMeta("want", fmt.Sprint(e.config.Dimension)).
					WithMeta("got", fmt.Sprint(len(vector)))
			}
		}
	}
	return decoded.Embeddings, nil
}

// Close releases pooled connections.
func (e *Ollama) Close() error {
	e.transport.CloseIdleConnections()
	return nil
}

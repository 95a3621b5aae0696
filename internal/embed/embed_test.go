package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luiz-Frias/semcode/internal/errors"
)

func TestSanitize(t *testing.T) {
	out := Sanitize([]string{"", "  ", "\n\t", "code"})
	assert.Equal(t, []string{" ", " ", " ", "code"}, out)
}

func TestStaticDeterministic(t *testing.T) {
	e := NewStatic()
	defer e.Close()

	first, err := e.Embed(context.Background(), "func main() {}")
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), "func main() {}")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, StaticDimensions)

	other, err := e.Embed(context.Background(), "completely different text")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestStaticBatchLengthMatchesInput(t *testing.T) {
	e := NewStatic()
	defer e.Close()

	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "", "c"})
	require.NoError(t, err)
	assert.Len(t, vectors, 3)

	dim, err := e.DetectDimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StaticDimensions, dim)
}

func TestStaticClosedErrors(t *testing.T) {
	e := NewStatic()
	require.NoError(t, e.Close())
	_, err := e.Embed(context.Background(), "x")
	require.Error(t, err)
}

func TestOllamaEmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := ollamaEmbedResponse{}
		for range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{0.1, 0.2, 0.3})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	e := NewOllama(OllamaConfig{Host: server.URL, Model: "test-model", Dimension: 3})
	defer e.Close()

	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vectors[0])
}

func TestOllamaDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{0.1, 0.2}}})
	}))
	defer server.Close()

	e := NewOllama(OllamaConfig{Host: server.URL, Dimension: 3})
	defer e.Close()

	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeEmbeddingDimension, errors.CodeOf(err))
}

func TestOllamaServerErrorIsRetriable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	e := NewOllama(OllamaConfig{Host: server.URL})
	defer e.Close()

	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, errors.IsRetriable(err))
}

func TestOllamaCancellationObserved(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	e := NewOllama(OllamaConfig{Host: server.URL})
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := e.EmbedBatch(ctx, []string{"a"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeCancelled, errors.CodeOf(err))
}

func TestGeminiEmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		var req geminiBatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := geminiBatchResponse{}
		for range req.Requests {
			resp.Embeddings = append(resp.Embeddings, struct {
				Values []float32 `json:"values"`
			}{Values: []float32{1, 2}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	e := NewGemini(GeminiConfig{BaseURL: server.URL, APIKey: newSecret("secret"), Dimension: 2})
	defer e.Close()

	vectors, err := e.EmbedBatch(context.Background(), []string{"x", "", "z"})
	require.NoError(t, err)
	assert.Len(t, vectors, 3)
}

func TestVoyageEmbedBatchReordersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := voyageEmbedResponse{}
		resp.Data = append(resp.Data, struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: []float32{2}, Index: 1})
		resp.Data = append(resp.Data, struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: []float32{1}, Index: 0})
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	e := NewVoyage(VoyageConfig{BaseURL: server.URL, APIKey: newSecret("k")})
	defer e.Close()

	vectors, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vectors[0])
	assert.Equal(t, []float32{2}, vectors[1])
}

func TestFactorySelectsProvider(t *testing.T) {
	e, err := New(FactoryConfig{Provider: "test"})
	require.NoError(t, err)
	assert.Equal(t, "test", e.ProviderID().String())

	_, err = New(FactoryConfig{Provider: "onnx"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeEmbeddingProviderUnknown, errors.CodeOf(err))
}

package embed

import (
	"time"

	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/ports"
	"github.com/Luiz-Frias/semcode/internal/redact"
)

// FactoryConfig selects and parameterizes an embedding provider.
type FactoryConfig struct {
	// Provider is one of: openai, gemini, ollama, voyage, test.
	Provider string

	Model     string
	Dimension int
	Timeout   time.Duration

	// APIKey authenticates remote providers.
	APIKey redact.Secret

	// BaseURL overrides the provider endpoint (openai, gemini, voyage).
	BaseURL string

	// OllamaHost overrides the Ollama endpoint.
	OllamaHost string
}

// New builds the provider named by cfg.Provider.
func New(cfg FactoryConfig) (ports.Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		}), nil
	case "gemini":
		return NewGemini(GeminiConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		}), nil
	case "ollama":
		return NewOllama(OllamaConfig{
			Host:      cfg.OllamaHost,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		}), nil
	case "voyage":
		return NewVoyage(VoyageConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		}), nil
	case "test":
		return NewStatic(), nil
	default:
		return nil, errors.Expected(errors.CodeEmbeddingProviderUnknown,
			"unknown embedding provider").WithMeta("provider", cfg.Provider)
	}
}

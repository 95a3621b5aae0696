package vectordb

import (
	"time"

	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/ports"
	"github.com/Luiz-Frias/semcode/internal/redact"
)

// FactoryConfig selects and parameterizes a vector DB provider.
type FactoryConfig struct {
	// Provider is one of: local, milvus, milvus_rest.
	Provider string

	// LocalDir roots the local backend (usually <root>/.context/vector).
	LocalDir string

	// Address is the Milvus endpoint.
	Address string
	// Token authenticates against Milvus.
	Token redact.Secret
	// DBName selects the Milvus database.
	DBName string
	// Timeout bounds Milvus requests.
	Timeout time.Duration
}

// New builds the provider named by cfg.Provider. The "milvus" and
// "milvus_rest" ids share the REST transport.
func New(cfg FactoryConfig) (ports.VectorDB, error) {
	switch cfg.Provider {
	case "local":
		return NewLocal(cfg.LocalDir), nil
	case "milvus", "milvus_rest":
		return NewMilvusRest(MilvusRestConfig{
			BaseURL: cfg.Address,
			Token:   cfg.Token,
			DBName:  cfg.DBName,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, errors.Expected(errors.CodeVdbProviderUnknown,
			"unknown vector db provider").WithMeta("provider", cfg.Provider)
	}
}

// Package config loads, validates and persists the effective semcode
// configuration: defaults, then the TOML config file, then SEMCODE_* env
// overrides, in that order.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/redact"
)

// FileName is the config file under the state directory.
const FileName = "config.toml"

// EnvPrefix namespaces the environment overrides.
const EnvPrefix = "SEMCODE_"

// Config is the complete configuration tree.
type Config struct {
	Embedding EmbeddingConfig `toml:"embedding"`
	VectorDB  VectorDBConfig  `toml:"vector_db"`
	Index     IndexConfig     `toml:"index"`
	Retry     RetryConfig     `toml:"retry"`
	Limits    LimitsConfig    `toml:"limits"`
	Cache     CacheConfig     `toml:"cache"`
	Snapshot  SnapshotConfig  `toml:"snapshot"`
	Logging   LoggingConfig   `toml:"logging"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider   string     `toml:"provider"`
	Model      string     `toml:"model"`
	Dimension  int        `toml:"dimension"`
	BatchSize  int        `toml:"batch_size"`
	TimeoutMs  int        `toml:"timeout_ms"`
	BaseURL    string     `toml:"base_url,omitempty"`
	OllamaHost string     `toml:"ollama_host,omitempty"`
	Jobs       JobsConfig `toml:"jobs"`

	// APIKey is only ever read from the environment, never the file.
	APIKey redact.Secret `toml:"-"`
}

// JobsConfig tunes the background job runner.
type JobsConfig struct {
	ProgressIntervalMs   int `toml:"progress_interval_ms"`
	CancelPollIntervalMs int `toml:"cancel_poll_interval_ms"`
}

// VectorDBConfig selects and tunes the vector database provider.
type VectorDBConfig struct {
	Provider string            `toml:"provider"`
	Address  string            `toml:"address,omitempty"`
	DBName   string            `toml:"db_name,omitempty"`
	Index    VectorIndexConfig `toml:"index"`

	// Token is only ever read from the environment, never the file.
	Token redact.Secret `toml:"-"`
}

// VectorIndexConfig carries index creation parameters.
type VectorIndexConfig struct {
	Dense  IndexParamsConfig `toml:"dense"`
	Sparse IndexParamsConfig `toml:"sparse"`
}

// IndexParamsConfig is one index parameter block.
type IndexParamsConfig struct {
	Type   string `toml:"type,omitempty"`
	Metric string `toml:"metric,omitempty"`
}

// IndexConfig tunes the indexing pipeline.
type IndexConfig struct {
	Mode                string   `toml:"mode"`
	SupportedExtensions []string `toml:"supported_extensions"`
	IgnorePatterns      []string `toml:"ignore_patterns"`
	MaxFiles            int      `toml:"max_files"`
	MaxFileSizeBytes    int64    `toml:"max_file_size_bytes"`
	ChunkLimit          int      `toml:"chunk_limit"`
	ChunkSize           int      `toml:"chunk_size"`
	ChunkOverlap        int      `toml:"chunk_overlap"`
}

// RetryConfig tunes the retry policy.
type RetryConfig struct {
	MaxAttempts    int `toml:"max_attempts"`
	BaseDelayMs    int `toml:"base_delay_ms"`
	MaxDelayMs     int `toml:"max_delay_ms"`
	JitterRatioPct int `toml:"jitter_ratio_pct"`
}

// LimitsConfig caps pipeline concurrency and buffering.
type LimitsConfig struct {
	MaxInFlightFiles            int `toml:"max_in_flight_files"`
	MaxInFlightEmbeddingBatches int `toml:"max_in_flight_embedding_batches"`
	MaxInFlightInserts          int `toml:"max_in_flight_inserts"`
	MaxBufferedChunks           int `toml:"max_buffered_chunks"`
	MaxBufferedEmbeddings       int `toml:"max_buffered_embeddings"`
}

// CacheConfig tunes the embedding cache.
type CacheConfig struct {
	Enabled    bool            `toml:"enabled"`
	MaxEntries int             `toml:"max_entries"`
	MaxBytes   int64           `toml:"max_bytes"`
	Disk       DiskCacheConfig `toml:"disk"`
}

// DiskCacheConfig tunes the optional SQL-backed L2 cache.
type DiskCacheConfig struct {
	Enabled  bool   `toml:"enabled"`
	Path     string `toml:"path,omitempty"`
	Table    string `toml:"table,omitempty"`
	MaxBytes int64  `toml:"max_bytes"`
}

// SnapshotConfig selects snapshot persistence.
type SnapshotConfig struct {
	Storage string `toml:"storage"`
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Embedding: EmbeddingConfig{
			Provider:  "test",
			BatchSize: 32,
			TimeoutMs: 60_000,
			Jobs: JobsConfig{
				ProgressIntervalMs:   500,
				CancelPollIntervalMs: 250,
			},
		},
		VectorDB: VectorDBConfig{
			Provider: "local",
			Index: VectorIndexConfig{
				Dense: IndexParamsConfig{Metric: "COSINE"},
			},
		},
		Index: IndexConfig{
			Mode:             "dense",
			MaxFiles:         10_000,
			MaxFileSizeBytes: 1 << 20,
			ChunkLimit:       100_000,
			ChunkSize:        200,
			ChunkOverlap:     40,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			BaseDelayMs:    500,
			MaxDelayMs:     8_000,
			JitterRatioPct: 100,
		},
		Limits: LimitsConfig{
			MaxInFlightFiles:            8,
			MaxInFlightEmbeddingBatches: 4,
			MaxInFlightInserts:          4,
			MaxBufferedChunks:           2_048,
			MaxBufferedEmbeddings:       1_024,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 10_000,
			MaxBytes:   64 << 20,
		},
		Snapshot: SnapshotConfig{Storage: "project"},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Load reads a config file and merges it over the defaults. A missing
// file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	payload, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.IO(err).WithMeta("path", path)
	}
	if err := toml.Unmarshal(payload, &cfg); err != nil {
		return cfg, errors.Expected(errors.CodeConfigParse, "failed to parse config file").
			WithMeta("path", path).
			WithCause(err)
	}
	return cfg, nil
}

// LoadEffective loads the file, applies env overrides and validates.
func LoadEffective(path string, env map[string]string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	cfg.applyEnv(env)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EnvFromOS captures the SEMCODE_* environment.
func EnvFromOS() map[string]string {
	env := make(map[string]string)
	for _, pair := range os.Environ() {
		if !strings.HasPrefix(pair, EnvPrefix) {
			continue
		}
		if idx := strings.IndexByte(pair, '='); idx > 0 {
			env[pair[:idx]] = pair[idx+1:]
		}
	}
	return env
}

// applyEnv merges SEMCODE_* overrides into the config. Highest priority.
func (c *Config) applyEnv(env map[string]string) {
	get := func(key string) (string, bool) {
		value, ok := env[EnvPrefix+key]
		return value, ok && value != ""
	}
	if v, ok := get("EMBEDDING_PROVIDER"); ok {
		c.Embedding.Provider = v
	}
	if v, ok := get("EMBEDDING_MODEL"); ok {
		c.Embedding.Model = v
	}
	if v, ok := get("EMBEDDING_DIMENSION"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embedding.Dimension = n
		}
	}
	if v, ok := get("EMBEDDING_BATCH_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embedding.BatchSize = n
		}
	}
	if v, ok := get("EMBEDDING_TIMEOUT_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embedding.TimeoutMs = n
		}
	}
	if v, ok := get("EMBEDDING_API_KEY"); ok {
		c.Embedding.APIKey = redact.NewSecret(v)
	}
	if v, ok := get("EMBEDDING_BASE_URL"); ok {
		c.Embedding.BaseURL = v
	}
	if v, ok := get("OLLAMA_HOST"); ok {
		c.Embedding.OllamaHost = v
	}
	if v, ok := get("VECTORDB_PROVIDER"); ok {
		c.VectorDB.Provider = v
	}
	if v, ok := get("VECTORDB_ADDRESS"); ok {
		c.VectorDB.Address = v
	}
	if v, ok := get("VECTORDB_TOKEN"); ok {
		c.VectorDB.Token = redact.NewSecret(v)
	}
	if v, ok := get("INDEX_MODE"); ok {
		c.Index.Mode = v
	}
	if v, ok := get("SNAPSHOT_STORAGE"); ok {
		c.Snapshot.Storage = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
}

// Validate collects every violation into one invalid-config error.
func (c *Config) Validate() error {
	var problems []string

	if c.Embedding.Provider == "" {
		problems = append(problems, "embedding.provider must be set")
	}
	if c.Embedding.BatchSize < 1 || c.Embedding.BatchSize > 1024 {
		problems = append(problems, "embedding.batch_size must be in [1, 1024]")
	}
	if c.Embedding.TimeoutMs < 0 {
		problems = append(problems, "embedding.timeout_ms must be >= 0")
	}
	if c.Embedding.Dimension < 0 {
		problems = append(problems, "embedding.dimension must be >= 0")
	}
	if c.VectorDB.Provider == "" {
		problems = append(problems, "vector_db.provider must be set")
	}
	switch c.Index.Mode {
	case "dense", "hybrid":
	default:
		problems = append(problems, "index.mode must be dense or hybrid")
	}
	if c.Index.ChunkLimit < 1 {
		problems = append(problems, "index.chunk_limit must be >= 1")
	}
	if c.Index.ChunkSize < 1 {
		problems = append(problems, "index.chunk_size must be >= 1")
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		problems = append(problems, "index.chunk_overlap must be in [0, chunk_size)")
	}
	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, "retry.max_attempts must be >= 1")
	}
	if c.Retry.JitterRatioPct < 0 || c.Retry.JitterRatioPct > 100 {
		problems = append(problems, "retry.jitter_ratio_pct must be in [0, 100]")
	}
	if c.Limits.MaxInFlightFiles < 1 || c.Limits.MaxInFlightEmbeddingBatches < 1 || c.Limits.MaxInFlightInserts < 1 {
		problems = append(problems, "limits.max_in_flight_* must be >= 1")
	}
	if c.Limits.MaxBufferedChunks < c.Embedding.BatchSize {
		problems = append(problems, "limits.max_buffered_chunks must be >= embedding.batch_size")
	}
	if _, err := parseStorage(c.Snapshot.Storage); err != nil {
		problems = append(problems, "snapshot.storage must be project, disabled or user")
	}

	if len(problems) > 0 {
		return errors.Expected(errors.CodeConfigInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func parseStorage(input string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "project":
		return "project", nil
	case "disabled":
		return "disabled", nil
	case "user":
		return "user", nil
	}
	return "", errors.InvalidInput("bad storage mode")
}

// EncodePretty renders the config as canonical TOML. Secrets never have
// TOML tags, so they cannot leak through this path.
func (c Config) EncodePretty() (string, error) {
	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	encoder.Indent = ""
	if err := encoder.Encode(c); err != nil {
		return "", errors.Invariant("failed to encode config").WithCause(err)
	}
	return buf.String(), nil
}

// EnsureDefault writes the default config to path unless a file already
// exists. Never overwrites.
func EnsureDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.IO(err).WithMeta("path", path)
	}
	rendered, err := Default().EncodePretty()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.IO(err).WithMeta("path", path)
	}
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return errors.IO(err).WithMeta("path", path)
	}
	return nil
}

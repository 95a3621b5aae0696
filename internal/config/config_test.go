package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luiz-Frias/semcode/internal/errors"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "test", cfg.Embedding.Provider)
	assert.Equal(t, "local", cfg.VectorDB.Provider)
	assert.Equal(t, "project", cfg.Snapshot.Storage)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[embedding]
provider = "ollama"
batch_size = 8

[index]
mode = "hybrid"
chunk_limit = 50
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, 8, cfg.Embedding.BatchSize)
	assert.Equal(t, "hybrid", cfg.Index.Mode)
	assert.Equal(t, 50, cfg.Index.ChunkLimit)
	// Unset values keep their defaults.
	assert.Equal(t, Default().Retry, cfg.Retry)
}

func TestLoadRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("embedding = {"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigParse, errors.CodeOf(err))
}

func TestEnvOverridesWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[embedding]\nprovider = \"ollama\"\n"), 0o644))

	cfg, err := LoadEffective(path, map[string]string{
		"SEMCODE_EMBEDDING_PROVIDER":  "openai",
		"SEMCODE_EMBEDDING_API_KEY":   "sk-test",
		"SEMCODE_EMBEDDING_DIMENSION": "1536",
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey.Expose())
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Default()
	cfg.Embedding.BatchSize = 0
	cfg.Index.Mode = "sparse"
	cfg.Retry.JitterRatioPct = 150

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.CodeOf(err))
	msg := err.Error()
	assert.Contains(t, msg, "batch_size")
	assert.Contains(t, msg, "index.mode")
	assert.Contains(t, msg, "jitter_ratio_pct")
}

func TestEncodePrettyRoundTrips(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Provider = "voyage"
	cfg.Index.SupportedExtensions = []string{".rs", ".go"}
	cfg.Index.IgnorePatterns = []string{"vendor/"}

	rendered, err := cfg.EncodePretty()
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, toml.Unmarshal([]byte(rendered), &decoded))
	assert.Equal(t, cfg, decoded)
}

func TestEncodePrettyNeverLeaksSecrets(t *testing.T) {
	cfg := Default()
	cfg.applyEnv(map[string]string{"SEMCODE_EMBEDDING_API_KEY": "sk-secret-value"})

	rendered, err := cfg.EncodePretty()
	require.NoError(t, err)
	assert.NotContains(t, rendered, "sk-secret-value")
}

func TestEnsureDefaultNeverOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	require.NoError(t, EnsureDefault(path))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[embedding]\nprovider = \"custom\"\n"), 0o644))
	require.NoError(t, EnsureDefault(path))

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, string(first), string(second))
	assert.Contains(t, string(second), "custom")
}

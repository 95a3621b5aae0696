package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupEmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Config{Level: "info", Writer: &buf})

	logger.Info("index started", slog.String("event", "index.start"), slog.Int("files", 3))

	line := strings.TrimSpace(buf.String())
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))

	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "index started", rec["message"])
	assert.Equal(t, "index.start", rec["event"])
	assert.NotZero(t, rec["timestampMs"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Config{Level: "warn", Writer: &buf})

	logger.Info("dropped")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestSecretAttrsRedacted(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Config{Writer: &buf})

	logger.Info("configured provider",
		slog.String("apiKey", "sk-live-123"),
		slog.String("provider", "openai"))

	assert.NotContains(t, buf.String(), "sk-live-123")
	assert.Contains(t, buf.String(), "[REDACTED]")
	assert.Contains(t, buf.String(), "openai")
}

func TestQueryAttrsRedactedWithLength(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Config{Writer: &buf})

	logger.Info("search", slog.String("query", "find the auth"))

	assert.NotContains(t, buf.String(), "find the auth")
	assert.Contains(t, buf.String(), "[REDACTED,len=13]")
}

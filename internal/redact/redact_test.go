package redact

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSecretKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"API_KEY", true},
		{"api_key", true},
		{"OPENAI_API_KEY", true},
		{"ACCESS_TOKEN", true},
		{"refresh_token", true},
		{"CLIENT_SECRET", true},
		{"DB_PASSWORD", true},
		{"AWS_CREDENTIAL", true},
		{"basic_auth", true},
		{"LOG_LEVEL", false},
		{"PORT", false},
		{"TIMEOUT_MS", false},
		{"MAX_RETRIES", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSecretKey(tt.key))
		})
	}
}

func TestValueRedactsSecrets(t *testing.T) {
	assert.Equal(t, Redacted, Value("apiKey", "sk-123456"))
	assert.Equal(t, Redacted, Value("password", "hunter2"))
	assert.Equal(t, "debug", Value("log_level", "debug"))
}

func TestValueRedactsQueriesWithLength(t *testing.T) {
	assert.Equal(t, "[REDACTED,len=5]", Value("query", "hello"))
	assert.Equal(t, "[REDACTED,len=0]", Value("searchQuery", ""))
}

func TestMapDoesNotMutateInput(t *testing.T) {
	in := map[string]string{"token": "abc", "path": "src/main.rs"}
	out := Map(in)
	assert.Equal(t, "abc", in["token"])
	assert.Equal(t, Redacted, out["token"])
	assert.Equal(t, "src/main.rs", out["path"])
}

func TestSecretNeverLeaks(t *testing.T) {
	secret := NewSecret("sk-live-deadbeef")

	assert.Equal(t, Redacted, secret.String())
	assert.Equal(t, Redacted, fmt.Sprintf("%v", secret))
	assert.Equal(t, Redacted, fmt.Sprintf("%#v", secret))

	payload, err := json.Marshal(secret)
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "deadbeef")

	assert.Equal(t, "sk-live-deadbeef", secret.Expose())
	assert.False(t, secret.Empty())
	assert.True(t, NewSecret("").Empty())
}

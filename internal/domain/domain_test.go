package domain

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luiz-Frias/semcode/internal/errors"
)

func TestParseCollectionName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "simple", input: "code_chunks_abc123"},
		{name: "leading letter", input: "Hybrid_1"},
		{name: "whitespace trimmed", input: "  chunks  "},
		{name: "empty", input: "", wantErr: true},
		{name: "leading digit", input: "1chunks", wantErr: true},
		{name: "dash", input: "code-chunks", wantErr: true},
		{name: "space inside", input: "code chunks", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCollectionName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.CodeDomainCollection, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, strings.TrimSpace(tt.input), got.String())
		})
	}
}

func TestLineSpanValidation(t *testing.T) {
	_, err := NewLineSpan(0, 5)
	require.Error(t, err)
	assert.Equal(t, errors.CodeDomainLineSpan, errors.CodeOf(err))

	_, err = NewLineSpan(7, 3)
	require.Error(t, err)

	span, err := NewLineSpan(3, 7)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), span.StartLine())
	assert.Equal(t, uint32(7), span.EndLine())
	assert.Equal(t, uint32(5), span.Lines())
	assert.Equal(t, "3-7", span.String())
}

func TestDeriveChunkIDDeterministic(t *testing.T) {
	span := MustLineSpan(1, 10)

	first, err := DeriveChunkID("src/lib.rs", span, "pub fn lib() {}")
	require.NoError(t, err)
	second, err := DeriveChunkID("src/lib.rs", span, "pub fn lib() {}")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Regexp(t, regexp.MustCompile(`^chunk_[0-9a-f]{16}$`), first.String())

	changed, err := DeriveChunkID("src/lib.rs", span, "pub fn lib() { }")
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}

func TestDeriveCollectionName(t *testing.T) {
	dense, err := DeriveCollectionName("/repo/project", IndexModeDense)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dense.String(), "code_chunks_"))

	hybrid, err := DeriveCollectionName("/repo/project", IndexModeHybrid)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hybrid.String(), "hybrid_code_chunks_"))

	// Trailing slash and redundant segments do not change the derivation.
	again, err := DeriveCollectionName("/repo/project/", IndexModeDense)
	require.NoError(t, err)
	assert.Equal(t, dense, again)

	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`), dense.String())
}

func TestDeriveCodebaseID(t *testing.T) {
	id, err := DeriveCodebaseID("/repo/project")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id.String(), "codebase_"))
	assert.Len(t, id.String(), len("codebase_")+12)

	other, err := DeriveCodebaseID("/repo/other")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestParseChunkIDRejectsForeignShapes(t *testing.T) {
	_, err := ParseChunkID("doc_123")
	require.Error(t, err)

	_, err = ParseChunkID("chunk_XYZ")
	require.Error(t, err)

	id, err := ParseChunkID("chunk_0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, "chunk_0123456789abcdef", id.String())
}

func TestParseIndexMode(t *testing.T) {
	mode, err := ParseIndexMode(" Dense ")
	require.NoError(t, err)
	assert.Equal(t, IndexModeDense, mode)

	_, err = ParseIndexMode("sparse")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.CodeOf(err))
}

func TestLanguageFromExtension(t *testing.T) {
	assert.Equal(t, Language("go"), LanguageFromExtension("cmd/main.go"))
	assert.Equal(t, Language("rust"), LanguageFromExtension("src/lib.rs"))
	assert.Equal(t, Language("typescript"), LanguageFromExtension("app/App.TSX"))
	assert.Equal(t, LanguageUnknown, LanguageFromExtension("LICENSE"))
}

func TestDetectLanguageFallsBackToContent(t *testing.T) {
	lang := DetectLanguage("build.gradle", []byte("apply plugin: 'java'\n"))
	assert.NotEqual(t, LanguageUnknown, lang)
}

func TestNewCodeChunkEnforcesBound(t *testing.T) {
	span := MustLineSpan(1, 1)
	_, err := NewCodeChunk(strings.Repeat("x", MaxChunkChars+1), span, "go", "a.go")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.CodeOf(err))

	chunk, err := NewCodeChunk("fn main() {}", span, "rust", "main.rs")
	require.NoError(t, err)
	assert.Equal(t, "main.rs", chunk.FilePath)
}

package domain

import "github.com/Luiz-Frias/semcode/internal/errors"

// MaxChunkChars bounds the character count of a single chunk.
const MaxChunkChars = 2500

// CodeChunk is one contiguous slice of a source file, the unit of
// embedding. Content length is bounded by MaxChunkChars.
type CodeChunk struct {
	Content  string
	Span     LineSpan
	Language Language
	FilePath string
}

// NewCodeChunk validates the content bound and constructs a chunk.
func NewCodeChunk(content string, span LineSpan, language Language, filePath string) (CodeChunk, error) {
	if len(content) > MaxChunkChars {
		return CodeChunk{}, errors.InvalidInput("chunk content exceeds MaxChunkChars").
			WithMeta("length", itoa(len(content))).
			WithMeta("max", itoa(MaxChunkChars))
	}
	return CodeChunk{Content: content, Span: span, Language: language, FilePath: filePath}, nil
}

// ChunkMetadata is the per-document metadata stored alongside a vector.
// Keys follow the wire format of the vector store (camelCase).
type ChunkMetadata struct {
	RelativePath  string   `json:"relativePath"`
	StartLine     uint32   `json:"startLine"`
	EndLine       uint32   `json:"endLine"`
	Language      Language `json:"language"`
	FileExtension string   `json:"fileExtension"`
	CodebaseID    string   `json:"codebaseId"`
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

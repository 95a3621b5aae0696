package domain

import (
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// Language is the lowercased language label attached to chunks.
type Language string

const LanguageUnknown Language = "unknown"

// extensionLanguages maps file extensions to languages. Extensions not
// listed here fall through to enry content detection.
var extensionLanguages = map[string]Language{
	".go":    "go",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".py":    "python",
	".pyi":   "python",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cc":    "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".ex":    "elixir",
	".exs":   "elixir",
	".hs":    "haskell",
	".lua":   "lua",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
	".md":    "markdown",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".html":  "html",
	".css":   "css",
	".proto": "protobuf",
	".zig":   "zig",
	".vue":   "vue",
}

// LanguageFromExtension resolves a language from a path's extension only.
func LanguageFromExtension(path string) Language {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}
	return LanguageUnknown
}

// DetectLanguage resolves a language from the extension map, falling back
// to enry content classification for unmapped extensions.
func DetectLanguage(path string, content []byte) Language {
	if lang := LanguageFromExtension(path); lang != LanguageUnknown {
		return lang
	}
	if len(content) == 0 {
		return LanguageUnknown
	}
	detected := enry.GetLanguage(filepath.Base(path), content)
	if detected == "" {
		return LanguageUnknown
	}
	return Language(strings.ToLower(detected))
}

// String returns the raw label.
func (l Language) String() string { return string(l) }

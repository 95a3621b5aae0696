package splitter

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/Luiz-Frias/semcode/internal/domain"
)

// languageRegistry maps domain languages to tree-sitter grammars.
type languageRegistry struct {
	grammars map[domain.Language]*sitter.Language
}

func defaultRegistry() *languageRegistry {
	return &languageRegistry{
		grammars: map[domain.Language]*sitter.Language{
			"go":         golang.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"typescript": typescript.GetLanguage(),
			"python":     python.GetLanguage(),
			"rust":       rust.GetLanguage(),
			"java":       java.GetLanguage(),
		},
	}
}

// grammarFor resolves the grammar for a language, special-casing .tsx
// files which need the TSX grammar rather than plain TypeScript.
func (r *languageRegistry) grammarFor(language domain.Language, filePath string) (*sitter.Language, bool) {
	if language == "typescript" && strings.HasSuffix(strings.ToLower(filePath), ".tsx") {
		return tsx.GetLanguage(), true
	}
	grammar, ok := r.grammars[language]
	return grammar, ok
}

// Supported reports whether a tree-sitter grammar exists for the language.
func (r *languageRegistry) Supported(language domain.Language) bool {
	_, ok := r.grammars[language]
	return ok
}

package fsys

import (
	"context"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/Luiz-Frias/semcode/internal/ports"
)

// ContextIgnoreFile is the per-repo ignore file consulted during scans.
const ContextIgnoreFile = ".contextignore"

// forcedPatterns are always excluded regardless of configuration: the
// state dir and the .contextignore file itself.
var forcedPatterns = []string{StateDirName + "/", ContextIgnoreFile}

// Matcher is the Ignore implementation: gitignore-style patterns from the
// configured list, the repo's .contextignore file, and the forced entries
// for the state dir and the .contextignore file.
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

var _ ports.Ignore = (*Matcher)(nil)

// NewMatcher compiles the union of patterns. Blank lines and comments are
// dropped, the forced entries are always appended.
func NewMatcher(patterns []string) *Matcher {
	lines := make([]string, 0, len(patterns)+len(forcedPatterns))
	for _, pattern := range patterns {
		trimmed := strings.TrimSpace(pattern)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lines = append(lines, trimmed)
	}
	lines = append(lines, forcedPatterns...)
	return &Matcher{ignorer: gitignore.CompileIgnoreLines(lines...)}
}

// NewMatcherForRoot compiles configured patterns plus the codebase's
// .contextignore file when present.
func NewMatcherForRoot(ctx context.Context, fs ports.FileSystem, patterns []string) *Matcher {
	merged := append([]string(nil), patterns...)
	if content, err := fs.ReadFileText(ctx, ContextIgnoreFile, 1<<20); err == nil {
		for _, line := range strings.Split(content, "\n") {
			merged = append(merged, strings.TrimRight(line, "\r"))
		}
	}
	return NewMatcher(merged)
}

// Ignored reports whether the normalized relative path is excluded.
func (m *Matcher) Ignored(relativePath string, isDir bool) bool {
	path := NormalizeRelative(relativePath)
	if path == "" {
		return false
	}
	if m.ignorer.MatchesPath(path) {
		return true
	}
	if isDir && m.ignorer.MatchesPath(path+"/") {
		return true
	}
	return false
}

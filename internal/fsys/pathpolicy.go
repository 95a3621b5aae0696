package fsys

import (
	"path/filepath"
	"strings"

	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/ports"
)

// StateDirName is the per-codebase state directory.
const StateDirName = ".context"

// Policy validates relative paths before they reach the filesystem.
type Policy struct {
	// AllowStateDir permits paths under .context/ (used by the job
	// runner and sync adapters that own state files).
	AllowStateDir bool
}

var _ ports.PathPolicy = (*Policy)(nil)

// NewPolicy returns the default policy: state dir rejected.
func NewPolicy() *Policy {
	return &Policy{}
}

// ValidateRelative rejects absolute paths, traversal and state-dir access.
func (p *Policy) ValidateRelative(path string) error {
	if path == "" {
		return errors.InvalidInput("path must be non-empty")
	}
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return errors.Expected(errors.CodeDomainPathTraverse, "absolute paths are not allowed").
			WithMeta("path", path)
	}
	if len(path) >= 2 && path[1] == ':' {
		return errors.Expected(errors.CodeDomainPathTraverse, "absolute paths are not allowed").
			WithMeta("path", path)
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == ".." {
			return errors.Expected(errors.CodeDomainPathTraverse, "path traversal is not allowed").
				WithMeta("path", path)
		}
	}
	if !p.AllowStateDir {
		if path == StateDirName || strings.HasPrefix(path, StateDirName+"/") {
			return errors.PermissionDenied("state directory is off limits").
				WithMeta("path", path)
		}
	}
	return nil
}

// NormalizeRelative canonicalizes a relative path: forward slashes, no
// leading "./" or "/".
func NormalizeRelative(path string) string {
	normalized := strings.ReplaceAll(path, "\\", "/")
	for strings.HasPrefix(normalized, "./") {
		normalized = normalized[2:]
	}
	return strings.TrimPrefix(normalized, "/")
}

package pipeline

import (
	"path"
	"strings"

	"github.com/Luiz-Frias/semcode/internal/fsys"
	"github.com/Luiz-Frias/semcode/internal/reqctx"
)

// normalizeExtensions lowercases the allow-list and guarantees leading
// dots. An empty list means every extension is accepted.
func normalizeExtensions(extensions []string) map[string]bool {
	if len(extensions) == 0 {
		return nil
	}
	out := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		trimmed := strings.ToLower(strings.TrimSpace(ext))
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, ".") {
			trimmed = "." + trimmed
		}
		out[trimmed] = true
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func extensionAllowed(allowed map[string]bool, relativePath string) bool {
	if allowed == nil {
		return true
	}
	return allowed[strings.ToLower(path.Ext(relativePath))]
}

// scanFiles discovers candidate files breadth-first with sorted entries.
// Paths are normalized relative paths; traversal stops once maxFiles is
// reached.
func scanFiles(req *reqctx.Request, deps Deps, allowed map[string]bool, maxFiles int, stats *statsCollector) ([]string, error) {
	var files []string
	pending := []string{"."}

	for len(pending) > 0 {
		if err := req.EnsureNotCancelled("pipeline.scan"); err != nil {
			return nil, err
		}
		current := pending[0]
		pending = pending[1:]

		entries, err := deps.FS.ReadDir(req.Context(), current)
		if err != nil {
			return nil, err
		}

		for _, entry := range entries {
			relative := entry.Name
			if current != "." {
				relative = current + "/" + entry.Name
			}
			relative = fsys.NormalizeRelative(relative)

			stats.update(func(s *StageStats) { s.Scan.Candidates++ })

			if deps.Ignore != nil && deps.Ignore.Ignored(relative, entry.IsDir) {
				stats.update(func(s *StageStats) { s.Scan.Ignored++ })
				continue
			}
			if entry.IsDir {
				pending = append(pending, relative)
				continue
			}
			if err := deps.Policy.ValidateRelative(relative); err != nil {
				stats.update(func(s *StageStats) { s.Scan.Ignored++ })
				continue
			}
			if !extensionAllowed(allowed, relative) {
				stats.update(func(s *StageStats) { s.Scan.Ignored++ })
				continue
			}

			files = append(files, relative)
			if maxFiles > 0 && len(files) >= maxFiles {
				return files, nil
			}
		}
	}
	return files, nil
}

// validateFileList checks an explicit file list (reindex path) against
// the path policy and extension allow-list.
func validateFileList(deps Deps, allowed map[string]bool, fileList []string) ([]string, error) {
	var files []string
	for _, raw := range fileList {
		relative := fsys.NormalizeRelative(raw)
		if err := deps.Policy.ValidateRelative(relative); err != nil {
			return nil, err
		}
		if !extensionAllowed(allowed, relative) {
			continue
		}
		files = append(files, relative)
	}
	return files, nil
}

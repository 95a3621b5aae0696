package domain

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Luiz-Frias/semcode/internal/errors"
)

// NormalizeRootPath canonicalizes a codebase root so derivations are
// stable across platforms: cleaned, forward slashes, no trailing slash.
func NormalizeRootPath(root string) string {
	cleaned := filepath.ToSlash(filepath.Clean(root))
	if len(cleaned) > 1 {
		cleaned = strings.TrimSuffix(cleaned, "/")
	}
	return cleaned
}

// DeriveCodebaseID derives the stable codebase id from the root path:
// "codebase_" + first 12 hex chars of md5(normalized root).
func DeriveCodebaseID(codebaseRoot string) (CodebaseID, error) {
	digest := md5.Sum([]byte(NormalizeRootPath(codebaseRoot)))
	candidate := "codebase_" + hex.EncodeToString(digest[:])[:12]
	id, err := ParseCodebaseID(candidate)
	if err != nil {
		return "", errors.Invariant("derived codebase id failed validation").
			WithMeta("candidate", candidate)
	}
	return id, nil
}

// DeriveCollectionName derives the collection name owned by a
// (codebase root, index mode) pair: mode prefix + first 8 hex chars of
// md5(normalized root).
func DeriveCollectionName(codebaseRoot string, mode IndexMode) (CollectionName, error) {
	digest := md5.Sum([]byte(NormalizeRootPath(codebaseRoot)))
	prefix := "code_chunks"
	if mode == IndexModeHybrid {
		prefix = "hybrid_code_chunks"
	}
	candidate := prefix + "_" + hex.EncodeToString(digest[:])[:8]
	name, err := ParseCollectionName(candidate)
	if err != nil {
		return "", errors.Invariant("derived collection name failed validation").
			WithMeta("candidate", candidate)
	}
	return name, nil
}

// DeriveChunkID derives the deterministic chunk id:
// "chunk_" + first 16 hex chars of
// sha256(relative_path ":" start_line ":" end_line ":" content).
func DeriveChunkID(relativePath string, span LineSpan, content string) (ChunkID, error) {
	hasher := sha256.New()
	fmt.Fprintf(hasher, "%s:%d:%d:%s", relativePath, span.StartLine(), span.EndLine(), content)
	candidate := "chunk_" + hex.EncodeToString(hasher.Sum(nil))[:16]
	id, err := ParseChunkID(candidate)
	if err != nil {
		return "", errors.Invariant("derived chunk id failed validation").
			WithMeta("candidate", candidate)
	}
	return id, nil
}

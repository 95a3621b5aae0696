// Package domain holds the validated identifiers, spans and metadata
// shared by the pipeline, adapters and persistence layers.
package domain

import (
	"regexp"
	"strings"

	"github.com/Luiz-Frias/semcode/internal/errors"
)

// collectionNamePattern is the allowlist for vector collection names.
var collectionNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// CodebaseID identifies an indexed codebase (derived from its root path).
type CodebaseID string

// ParseCodebaseID validates a codebase id.
func ParseCodebaseID(input string) (CodebaseID, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.Expected(errors.CodeDomainCodebaseID, "CodebaseID must be non-empty")
	}
	return CodebaseID(trimmed), nil
}

// String returns the raw id.
func (id CodebaseID) String() string { return string(id) }

// CollectionName identifies a vector collection. Must match
// ^[A-Za-z][A-Za-z0-9_]*$.
type CollectionName string

// ParseCollectionName validates a collection name against the allowlist.
func ParseCollectionName(input string) (CollectionName, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.Expected(errors.CodeDomainCollection, "CollectionName must be non-empty")
	}
	if !collectionNamePattern.MatchString(trimmed) {
		return "", errors.Expected(errors.CodeDomainCollection,
			"CollectionName must match ^[A-Za-z][A-Za-z0-9_]*$").
			WithMeta("input", trimmed)
	}
	return CollectionName(trimmed), nil
}

// String returns the raw name.
func (n CollectionName) String() string { return string(n) }

// DocumentID identifies a stored vector document.
type DocumentID string

// ParseDocumentID validates a document id.
func ParseDocumentID(input string) (DocumentID, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.Expected(errors.CodeDomainDocumentID, "DocumentID must be non-empty")
	}
	return DocumentID(trimmed), nil
}

// String returns the raw id.
func (id DocumentID) String() string { return string(id) }

// ChunkID identifies a chunk ("chunk_" + 16 hex chars).
type ChunkID string

// chunkIDPattern is the shape produced by DeriveChunkID.
var chunkIDPattern = regexp.MustCompile(`^chunk_[0-9a-f]{16}$`)

// ParseChunkID validates a chunk id.
func ParseChunkID(input string) (ChunkID, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.Expected(errors.CodeDomainChunkID, "ChunkID must be non-empty")
	}
	if !chunkIDPattern.MatchString(trimmed) {
		return "", errors.Expected(errors.CodeDomainChunkID,
			"ChunkID must match ^chunk_[0-9a-f]{16}$").
			WithMeta("input", trimmed)
	}
	return ChunkID(trimmed), nil
}

// String returns the raw id.
func (id ChunkID) String() string { return string(id) }

// EmbeddingProviderID identifies an embedding adapter.
type EmbeddingProviderID string

// ParseEmbeddingProviderID validates an embedding provider id.
func ParseEmbeddingProviderID(input string) (EmbeddingProviderID, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.Expected(errors.CodeDomainProviderID, "EmbeddingProviderID must be non-empty")
	}
	return EmbeddingProviderID(trimmed), nil
}

// String returns the raw id.
func (id EmbeddingProviderID) String() string { return string(id) }

// VectorDBProviderID identifies a vector database adapter.
type VectorDBProviderID string

// ParseVectorDBProviderID validates a vector DB provider id.
func ParseVectorDBProviderID(input string) (VectorDBProviderID, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.Expected(errors.CodeDomainProviderID, "VectorDBProviderID must be non-empty")
	}
	return VectorDBProviderID(trimmed), nil
}

// String returns the raw id.
func (id VectorDBProviderID) String() string { return string(id) }

// IndexMode selects dense-only or hybrid (dense + sparse) indexing.
type IndexMode string

const (
	IndexModeDense  IndexMode = "dense"
	IndexModeHybrid IndexMode = "hybrid"
)

// ParseIndexMode validates an index mode string.
func ParseIndexMode(input string) (IndexMode, error) {
	switch IndexMode(strings.ToLower(strings.TrimSpace(input))) {
	case IndexModeDense:
		return IndexModeDense, nil
	case IndexModeHybrid:
		return IndexModeHybrid, nil
	default:
		return "", errors.InvalidInput("index mode must be dense or hybrid").
			WithMeta("input", input)
	}
}

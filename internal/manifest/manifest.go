// Package manifest persists the binding between a codebase root and its
// vector collection under .context/manifest.json.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio"

	"github.com/Luiz-Frias/semcode/internal/domain"
	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/fsys"
)

// SchemaVersion gates manifest compatibility.
const SchemaVersion = 1

// FileName is the manifest file under the state directory.
const FileName = "manifest.json"

// Manifest records how a codebase was initialized.
type Manifest struct {
	SchemaVersion   int    `json:"schemaVersion"`
	CodebaseRoot    string `json:"codebaseRoot"`
	CollectionName  string `json:"collectionName"`
	IndexMode       string `json:"indexMode"`
	SnapshotStorage string `json:"snapshotStorage"`
	CreatedAtMs     int64  `json:"createdAtMs"`
	UpdatedAtMs     int64  `json:"updatedAtMs"`
}

// Path returns the manifest location for a codebase root.
func Path(codebaseRoot string) string {
	return filepath.Join(codebaseRoot, fsys.StateDirName, FileName)
}

// Load reads and validates the manifest. Returns not_found when the
// codebase has not been initialized.
func Load(codebaseRoot string) (Manifest, error) {
	payload, err := os.ReadFile(Path(codebaseRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, errors.NotFound("manifest").WithMeta("codebaseRoot", codebaseRoot)
		}
		return Manifest{}, errors.IO(err).WithMeta("codebaseRoot", codebaseRoot)
	}

	var m Manifest
	if err := json.Unmarshal(payload, &m); err != nil {
		return Manifest{}, errors.Expected(errors.CodeConfigParse, "failed to parse manifest").
			WithCause(err)
	}
	if m.SchemaVersion != SchemaVersion {
		return Manifest{}, errors.Expected(errors.CodeConfigInvalid, "manifest schema version mismatch").
			WithMeta("found", strconv.Itoa(m.SchemaVersion)).
			WithMeta("expected", strconv.Itoa(SchemaVersion))
	}
	return m, nil
}

// Write persists the manifest atomically, bumping UpdatedAtMs.
func Write(codebaseRoot string, m Manifest) error {
	m.SchemaVersion = SchemaVersion
	now := time.Now().UnixMilli()
	if m.CreatedAtMs == 0 {
		m.CreatedAtMs = now
	}
	m.UpdatedAtMs = now

	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Invariant("failed to encode manifest").WithCause(err)
	}
	path := Path(codebaseRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.IO(err).WithMeta("path", path)
	}
	if err := renameio.WriteFile(path, payload, 0o644); err != nil {
		return errors.IO(err).WithMeta("path", path)
	}
	return nil
}

// Init creates or refreshes the manifest for a codebase root. Idempotent:
// a second call only touches timestamps.
func Init(codebaseRoot string, mode domain.IndexMode, snapshotStorage string) (Manifest, error) {
	abs, err := filepath.Abs(codebaseRoot)
	if err != nil {
		return Manifest{}, errors.IO(err).WithMeta("codebaseRoot", codebaseRoot)
	}
	collection, err := domain.DeriveCollectionName(abs, mode)
	if err != nil {
		return Manifest{}, err
	}

	m, loadErr := Load(abs)
	if loadErr == nil {
		m.CollectionName = collection.String()
		m.IndexMode = string(mode)
		m.SnapshotStorage = snapshotStorage
	} else {
		if !errors.Is(loadErr, errors.NotFound("manifest")) {
			return Manifest{}, loadErr
		}
		m = Manifest{
			CodebaseRoot:    domain.NormalizeRootPath(abs),
			CollectionName:  collection.String(),
			IndexMode:       string(mode),
			SnapshotStorage: snapshotStorage,
		}
	}
	if err := Write(abs, m); err != nil {
		return Manifest{}, err
	}
	return Load(abs)
}

// AppendGitignore appends a ".context/" line to an existing .gitignore.
// No-op when the file is absent or the line is already present.
func AppendGitignore(codebaseRoot string) error {
	path := filepath.Join(codebaseRoot, ".gitignore")
	payload, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.IO(err).WithMeta("path", path)
	}

	line := fsys.StateDirName + "/"
	for _, existing := range strings.Split(string(payload), "\n") {
		if strings.TrimSpace(existing) == line {
			return nil
		}
	}

	updated := string(payload)
	if updated != "" && !strings.HasSuffix(updated, "\n") {
		updated += "\n"
	}
	updated += line + "\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return errors.IO(err).WithMeta("path", path)
	}
	return nil
}


// Package filesync maintains the Merkle snapshot that powers incremental
// reindexing. One snapshot file exists per codebase root, keyed by the
// MD5 of the absolute root path.
package filesync

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/renameio"

	"github.com/Luiz-Frias/semcode/internal/domain"
	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/fsys"
	"github.com/Luiz-Frias/semcode/internal/merkle"
	"github.com/Luiz-Frias/semcode/internal/ports"
)

// SnapshotVersion gates snapshot compatibility. Other versions are
// rejected, not migrated.
const SnapshotVersion = 1

const snapshotDirName = "sync"

// StorageMode selects where snapshots are persisted.
type StorageMode string

const (
	// StorageProject keeps snapshots under <root>/.context/sync.
	StorageProject StorageMode = "project"
	// StorageDisabled keeps everything in memory.
	StorageDisabled StorageMode = "disabled"
	// StorageUser keeps snapshots under the user state dir.
	StorageUser StorageMode = "user"
)

// ParseStorageMode validates a storage mode string.
func ParseStorageMode(input string) (StorageMode, error) {
	switch StorageMode(strings.ToLower(strings.TrimSpace(input))) {
	case StorageProject, "":
		return StorageProject, nil
	case StorageDisabled:
		return StorageDisabled, nil
	case StorageUser:
		return StorageUser, nil
	default:
		return "", errors.InvalidInput("snapshot storage must be project, disabled or user").
			WithMeta("input", input)
	}
}

// snapshotFile is the persisted snapshot layout.
type snapshotFile struct {
	Version    int               `json:"version"`
	FileHashes [][2]string       `json:"fileHashes"`
	MerkleDAG  merkle.Serialized `json:"merkleDAG"`
}

// Local is the filesystem-backed FileSync adapter.
type Local struct {
	codebaseRoot string
	storageMode  StorageMode

	mu             sync.Mutex
	initialized    bool
	ignorePatterns []string
	matcher        *fsys.Matcher
	fileHashes     map[string]string
	dag            *merkle.DAG
}

var _ ports.FileSync = (*Local)(nil)

// NewLocal creates a file sync adapter scoped to a codebase root.
func NewLocal(codebaseRoot string, storageMode StorageMode) *Local {
	return &Local{
		codebaseRoot: codebaseRoot,
		storageMode:  storageMode,
		fileHashes:   map[string]string{},
		dag:          merkle.New(),
	}
}

// snapshotPath resolves the snapshot file, or "" when storage is off.
func (l *Local) snapshotPath() string {
	var base string
	switch l.storageMode {
	case StorageProject:
		base = filepath.Join(l.codebaseRoot, fsys.StateDirName, snapshotDirName)
	case StorageUser:
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".semcode", snapshotDirName)
	default:
		return ""
	}
	digest := md5.Sum([]byte(domain.NormalizeRootPath(absolute(l.codebaseRoot))))
	return filepath.Join(base, hex.EncodeToString(digest[:])+".json")
}

func absolute(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// Initialize records ignore patterns and loads any previous snapshot.
func (l *Local) Initialize(ctx context.Context, opts ports.FileSyncInitOptions) error {
	if err := ctx.Err(); err != nil {
		return errors.Cancelled("filesync.initialize").WithCause(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.ignorePatterns = append([]string(nil), opts.IgnorePatterns...)
	l.matcher = fsys.NewMatcherForRoot(ctx, fsys.NewLocal(l.codebaseRoot), l.ignorePatterns)

	snapshot, err := l.loadSnapshot()
	if err != nil {
		return err
	}
	if snapshot != nil {
		l.fileHashes = make(map[string]string, len(snapshot.FileHashes))
		for _, pair := range snapshot.FileHashes {
			l.fileHashes[pair[0]] = pair[1]
		}
		l.dag = merkle.Deserialize(snapshot.MerkleDAG)
	} else {
		l.fileHashes = map[string]string{}
		l.dag = merkle.New()
	}
	l.initialized = true
	return nil
}

func (l *Local) loadSnapshot() (*snapshotFile, error) {
	path := l.snapshotPath()
	if path == "" {
		return nil, nil
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.IO(err).WithMeta("path", path)
	}

	var snapshot snapshotFile
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, errors.Expected(errors.CodeSyncSnapshotParse, "failed to parse snapshot").
			WithMeta("path", path).
			WithCause(err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, errors.Expected(errors.CodeSyncSnapshotVersion, "snapshot version mismatch").
			WithMeta("found", fmt.Sprint(snapshot.Version)).
			WithMeta("expected", fmt.Sprint(SnapshotVersion))
	}
	return &snapshot, nil
}

// writeSnapshot persists atomically under an exclusive file lock.
func (l *Local) writeSnapshot(hashes map[string]string, dag *merkle.DAG) error {
	path := l.snapshotPath()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.IO(err).WithMeta("path", path)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return errors.IO(err).WithMeta("path", path)
	}
	defer func() { _ = lock.Unlock() }()

	snapshot := snapshotFile{Version: SnapshotVersion, MerkleDAG: dag.Serialize()}
	paths := make([]string, 0, len(hashes))
	for p := range hashes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		snapshot.FileHashes = append(snapshot.FileHashes, [2]string{p, hashes[p]})
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Invariant("failed to encode snapshot").WithCause(err)
	}
	if err := renameio.WriteFile(path, payload, 0o644); err != nil {
		return errors.IO(err).WithMeta("path", path)
	}
	return nil
}

// CheckForChanges walks the tree, compares the fresh DAG with the loaded
// one and persists the new snapshot when anything changed.
func (l *Local) CheckForChanges(ctx context.Context) (ports.FileChangeSet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return ports.FileChangeSet{}, errors.Expected(errors.CodeSyncNotInitialized,
			"file sync has not been initialized")
	}
	if err := ctx.Err(); err != nil {
		return ports.FileChangeSet{}, errors.Cancelled("filesync.check_for_changes").WithCause(err)
	}

	newHashes, err := l.generateFileHashes(ctx)
	if err != nil {
		return ports.FileChangeSet{}, err
	}
	newDAG := buildDAG(newHashes)

	if merkle.Compare(l.dag, newDAG).Empty() {
		return ports.FileChangeSet{}, nil
	}

	changes := diffHashes(l.fileHashes, newHashes)
	if err := l.writeSnapshot(newHashes, newDAG); err != nil {
		return ports.FileChangeSet{}, err
	}
	l.fileHashes = newHashes
	l.dag = newDAG
	return changes, nil
}

// DeleteSnapshot removes the persisted snapshot. Idempotent.
func (l *Local) DeleteSnapshot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Cancelled("filesync.delete_snapshot").WithCause(err)
	}
	path := l.snapshotPath()
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.IO(err).WithMeta("path", path)
	}
	l.mu.Lock()
	l.fileHashes = map[string]string{}
	l.dag = merkle.New()
	l.mu.Unlock()
	return nil
}

// generateFileHashes walks the tree breadth-first with sorted entries and
// hashes every non-ignored file.
func (l *Local) generateFileHashes(ctx context.Context) (map[string]string, error) {
	hashes := make(map[string]string)
	pending := []string{l.codebaseRoot}

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, errors.Cancelled("filesync.scan").WithCause(err)
		}
		current := pending[0]
		pending = pending[1:]

		entries, err := os.ReadDir(current)
		if err != nil {
			return nil, errors.IO(err).WithMeta("path", current)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			full := filepath.Join(current, entry.Name())
			relative, ok := l.relativePath(full)
			if !ok {
				continue
			}
			if l.matcher != nil && l.matcher.Ignored(relative, entry.IsDir()) {
				continue
			}
			if entry.IsDir() {
				pending = append(pending, full)
				continue
			}
			if !entry.Type().IsRegular() {
				continue
			}
			hash, err := hashFile(full)
			if err != nil {
				return nil, err
			}
			hashes[relative] = hash
		}
	}
	return hashes, nil
}

func (l *Local) relativePath(full string) (string, bool) {
	rel, err := filepath.Rel(l.codebaseRoot, full)
	if err != nil {
		return "", false
	}
	normalized := fsys.NormalizeRelative(filepath.ToSlash(rel))
	if normalized == "" || normalized == "." {
		return "", false
	}
	return normalized, true
}

// buildDAG assembles the snapshot DAG: one root whose data covers every
// file hash plus one child per file.
func buildDAG(hashes map[string]string) *merkle.DAG {
	dag := merkle.New()

	sortedHashes := make([]string, 0, len(hashes))
	for _, hash := range hashes {
		sortedHashes = append(sortedHashes, hash)
	}
	sort.Strings(sortedHashes)

	root := dag.AddNode("root:"+strings.Join(sortedHashes, ""), "")
	paths := make([]string, 0, len(hashes))
	for path := range hashes {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		dag.AddNode(path+":"+hashes[path], root)
	}
	return dag
}

// diffHashes produces the sorted, deduplicated, disjoint change sets.
func diffHashes(old, new map[string]string) ports.FileChangeSet {
	var changes ports.FileChangeSet
	for path, hash := range new {
		oldHash, existed := old[path]
		switch {
		case !existed:
			changes.Added = append(changes.Added, path)
		case oldHash != hash:
			changes.Modified = append(changes.Modified, path)
		}
	}
	for path := range old {
		if _, exists := new[path]; !exists {
			changes.Removed = append(changes.Removed, path)
		}
	}
	sort.Strings(changes.Added)
	sort.Strings(changes.Removed)
	sort.Strings(changes.Modified)
	return changes
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", errors.IO(err).WithMeta("path", path)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", errors.IO(err).WithMeta("path", path)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

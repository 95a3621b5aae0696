// Package fsys provides the local filesystem adapter plus the path policy
// and ignore matcher that guard everything the pipeline reads.
package fsys

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/ports"
)

// Local is the production FileSystem rooted at a codebase directory.
type Local struct {
	root string
}

var _ ports.FileSystem = (*Local)(nil)

// NewLocal creates a filesystem adapter rooted at root.
func NewLocal(root string) *Local {
	return &Local{root: root}
}

// Root returns the adapter root.
func (l *Local) Root() string { return l.root }

func (l *Local) resolve(path string) string {
	if path == "" || path == "." {
		return l.root
	}
	return filepath.Join(l.root, filepath.FromSlash(path))
}

// ReadDir lists a directory sorted by name.
func (l *Local) ReadDir(ctx context.Context, path string) ([]ports.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled("read_dir").WithCause(err)
	}
	raw, err := os.ReadDir(l.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("directory").WithMeta("path", path).WithCause(err)
		}
		if os.IsPermission(err) {
			return nil, errors.PermissionDenied("cannot read directory").WithMeta("path", path).WithCause(err)
		}
		return nil, errors.IO(err).WithMeta("path", path)
	}

	entries := make([]ports.DirEntry, 0, len(raw))
	for _, entry := range raw {
		entries = append(entries, ports.DirEntry{Name: entry.Name(), IsDir: entry.IsDir()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// ReadFileText reads a file as UTF-8 text, enforcing the size bound.
func (l *Local) ReadFileText(ctx context.Context, path string, maxBytes int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Cancelled("read_file").WithCause(err)
	}
	full := l.resolve(path)

	if maxBytes > 0 {
		info, err := os.Stat(full)
		if err == nil && info.Size() > maxBytes {
			return "", errors.InvalidInput("file exceeds size bound").
				WithMeta("path", path).
				WithMeta("sizeBytes", int64String(info.Size())).
				WithMeta("maxBytes", int64String(maxBytes))
		}
	}

	payload, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NotFound("file").WithMeta("path", path).WithCause(err)
		}
		if os.IsPermission(err) {
			return "", errors.PermissionDenied("cannot read file").WithMeta("path", path).WithCause(err)
		}
		return "", errors.IO(err).WithMeta("path", path)
	}
	if !utf8.Valid(payload) {
		return "", errors.InvalidInput("file is not valid UTF-8").WithMeta("path", path)
	}
	return string(payload), nil
}

// Stat returns file metadata.
func (l *Local) Stat(ctx context.Context, path string) (ports.FileStat, error) {
	if err := ctx.Err(); err != nil {
		return ports.FileStat{}, errors.Cancelled("stat").WithCause(err)
	}
	info, err := os.Stat(l.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return ports.FileStat{}, errors.NotFound("file").WithMeta("path", path).WithCause(err)
		}
		return ports.FileStat{}, errors.IO(err).WithMeta("path", path)
	}
	return ports.FileStat{
		Size:      info.Size(),
		IsDir:     info.IsDir(),
		ModTimeMs: info.ModTime().UnixMilli(),
	}, nil
}

func int64String(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [21]byte
	pos := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
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

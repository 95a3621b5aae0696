package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Luiz-Frias/semcode/internal/errors"
)

// DiskSchemaVersion is bumped whenever the cache table layout changes.
// On mismatch the table is rotated aside, never migrated: the cache is
// advisory and can always be rebuilt.
const DiskSchemaVersion = "1"

// DefaultDiskTable is the default cache table name.
const DefaultDiskTable = "embedding_cache"

// DiskConfig configures the SQL-backed L2 cache.
type DiskConfig struct {
	// Path is the SQLite database file.
	Path string
	// Table overrides the cache table name.
	Table string
	// MaxBytes caps the total size_bytes; eviction is LRU by
	// last_accessed_ms. <= 0 disables eviction.
	MaxBytes int64
}

// Disk is the SQLite L2 cache.
type Disk struct {
	db     *sql.DB
	table  string
	config DiskConfig

	nowMs func() int64
}

// OpenDisk opens (and if needed creates or rotates) the cache database.
func OpenDisk(ctx context.Context, cfg DiskConfig) (*Disk, error) {
	if cfg.Table == "" {
		cfg.Table = DefaultDiskTable
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeCacheIO,
			"failed to open cache database").WithCause(err)
	}

	d := &Disk{
		db:     db,
		table:  cfg.Table,
		config: cfg,
		nowMs:  func() int64 { return time.Now().UnixMilli() },
	}
	if err := d.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Disk) metaTable() string {
	return d.table + "_meta"
}

// ensureSchema creates the cache and meta tables, rotating the cache
// table aside when the recorded schema version does not match.
func (d *Disk) ensureSchema(ctx context.Context) error {
	createMeta := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (meta_key TEXT PRIMARY KEY, meta_value TEXT NOT NULL)`,
		d.metaTable())
	if _, err := d.db.ExecContext(ctx, createMeta); err != nil {
		return d.ioError("create meta table", err)
	}

	var version string
	row := d.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT meta_value FROM %s WHERE meta_key = 'schema_version'`, d.metaTable()))
	switch err := row.Scan(&version); err {
	case nil:
		if version != DiskSchemaVersion {
			if err := d.rotate(ctx, version); err != nil {
				return err
			}
		}
	case sql.ErrNoRows:
		// Fresh database.
	default:
		return d.ioError("read schema version", err)
	}

	createCache := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		cache_key        TEXT PRIMARY KEY,
		vector_json      TEXT NOT NULL,
		dimension        INTEGER NOT NULL,
		size_bytes       INTEGER NOT NULL,
		created_at_ms    INTEGER NOT NULL,
		last_accessed_ms INTEGER NOT NULL
	)`, d.table)
	if _, err := d.db.ExecContext(ctx, createCache); err != nil {
		return d.ioError("create cache table", err)
	}

	upsertVersion := fmt.Sprintf(
		`INSERT INTO %s (meta_key, meta_value) VALUES ('schema_version', ?)
		 ON CONFLICT(meta_key) DO UPDATE SET meta_value = excluded.meta_value`,
		d.metaTable())
	if _, err := d.db.ExecContext(ctx, upsertVersion, DiskSchemaVersion); err != nil {
		return d.ioError("record schema version", err)
	}
	return nil
}

// rotate renames the stale cache table to <table>_legacy_<version>_<ts>.
func (d *Disk) rotate(ctx context.Context, foundVersion string) error {
	legacy := fmt.Sprintf("%s_legacy_%s_%d", d.table, foundVersion, time.Now().Unix())
	rename := fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, d.table, legacy)
	if _, err := d.db.ExecContext(ctx, rename); err != nil {
		return errors.Unexpected(errors.ClassNonRetriable, errors.CodeCacheSchema,
			"failed to rotate stale cache table").
			WithMeta("found", foundVersion).
			WithMeta("expected", DiskSchemaVersion).
			WithCause(err)
	}
	return nil
}

// Get returns the cached vector and refreshes its access time.
func (d *Disk) Get(ctx context.Context, key string) ([]float32, bool, error) {
	var vectorJSON string
	row := d.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT vector_json FROM %s WHERE cache_key = ?`, d.table), key)
	switch err := row.Scan(&vectorJSON); err {
	case nil:
	case sql.ErrNoRows:
		return nil, false, nil
	default:
		return nil, false, d.ioError("cache read", err)
	}

	var vector []float32
	if err := json.Unmarshal([]byte(vectorJSON), &vector); err != nil {
		return nil, false, nil // Treat corrupt rows as misses.
	}

	if _, err := d.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET last_accessed_ms = ? WHERE cache_key = ?`, d.table),
		d.nowMs(), key); err != nil {
		return nil, false, d.ioError("cache touch", err)
	}
	return vector, true, nil
}

// Put stores a vector and evicts LRU rows past the byte cap.
func (d *Disk) Put(ctx context.Context, key string, vector []float32) error {
	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return errors.Invariant("failed to encode vector").WithCause(err)
	}
	now := d.nowMs()

	upsert := fmt.Sprintf(`INSERT INTO %s
		(cache_key, vector_json, dimension, size_bytes, created_at_ms, last_accessed_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			vector_json = excluded.vector_json,
			dimension = excluded.dimension,
			size_bytes = excluded.size_bytes,
			last_accessed_ms = excluded.last_accessed_ms`, d.table)
	if _, err := d.db.ExecContext(ctx, upsert,
		key, string(vectorJSON), len(vector), vectorBytes(vector), now, now); err != nil {
		return d.ioError("cache write", err)
	}
	return d.evict(ctx)
}

// evict removes least-recently-used rows until size_bytes fits MaxBytes.
func (d *Disk) evict(ctx context.Context) error {
	if d.config.MaxBytes <= 0 {
		return nil
	}
	for {
		var total sql.NullInt64
		row := d.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT SUM(size_bytes) FROM %s`, d.table))
		if err := row.Scan(&total); err != nil {
			return d.ioError("cache size", err)
		}
		if !total.Valid || total.Int64 <= d.config.MaxBytes {
			return nil
		}
		del := fmt.Sprintf(`DELETE FROM %s WHERE cache_key IN (
			SELECT cache_key FROM %s ORDER BY last_accessed_ms ASC LIMIT 1)`, d.table, d.table)
		result, err := d.db.ExecContext(ctx, del)
		if err != nil {
			return d.ioError("cache evict", err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return nil
		}
	}
}

// Len returns the number of cached rows.
func (d *Disk) Len(ctx context.Context) (int, error) {
	var count int
	row := d.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, d.table))
	if err := row.Scan(&count); err != nil {
		return 0, d.ioError("cache count", err)
	}
	return count, nil
}

// Close closes the database.
func (d *Disk) Close() error {
	return d.db.Close()
}

func (d *Disk) ioError(operation string, err error) error {
	return errors.Unexpected(errors.ClassRetriable, errors.CodeCacheIO, operation+" failed").
		WithMeta("operation", operation).
		WithCause(err)
}

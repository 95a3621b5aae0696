// Package facade composes configuration, adapters, the pipeline and the
// job runner into the operations the CLI exposes.
package facade

import (
	"context"
	"path/filepath"
	"time"

	"github.com/Luiz-Frias/semcode/internal/cache"
	"github.com/Luiz-Frias/semcode/internal/config"
	"github.com/Luiz-Frias/semcode/internal/domain"
	"github.com/Luiz-Frias/semcode/internal/embed"
	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/filesync"
	"github.com/Luiz-Frias/semcode/internal/fsys"
	"github.com/Luiz-Frias/semcode/internal/jobs"
	"github.com/Luiz-Frias/semcode/internal/manifest"
	"github.com/Luiz-Frias/semcode/internal/pipeline"
	"github.com/Luiz-Frias/semcode/internal/ports"
	"github.com/Luiz-Frias/semcode/internal/reqctx"
	"github.com/Luiz-Frias/semcode/internal/search"
	"github.com/Luiz-Frias/semcode/internal/vectordb"
)

// App holds the resolved configuration for one codebase root.
type App struct {
	Root      string
	Config    config.Config
	Manifest  manifest.Manifest
	Telemetry ports.Telemetry
}

// Open resolves the root, loads the effective config and the manifest.
func Open(root string, telemetry ports.Telemetry) (*App, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.IO(err).WithMeta("root", root)
	}
	cfg, err := config.LoadEffective(
		filepath.Join(abs, fsys.StateDirName, config.FileName),
		config.EnvFromOS())
	if err != nil {
		return nil, err
	}
	m, err := manifest.Load(abs)
	if err != nil && !errors.Is(err, errors.NotFound("manifest")) {
		return nil, err
	}
	return &App{Root: abs, Config: cfg, Manifest: m, Telemetry: telemetry}, nil
}

// Initialized reports whether the codebase has a manifest.
func (a *App) Initialized() bool {
	return a.Manifest.CollectionName != ""
}

// Init creates the state dir, manifest, default config and gitignore
// entry. Idempotent.
func Init(root string, telemetry ports.Telemetry) (*App, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.IO(err).WithMeta("root", root)
	}
	cfg, err := config.LoadEffective(
		filepath.Join(abs, fsys.StateDirName, config.FileName),
		config.EnvFromOS())
	if err != nil {
		return nil, err
	}
	mode, err := domain.ParseIndexMode(cfg.Index.Mode)
	if err != nil {
		return nil, err
	}

	m, err := manifest.Init(abs, mode, cfg.Snapshot.Storage)
	if err != nil {
		return nil, err
	}
	if err := config.EnsureDefault(filepath.Join(abs, fsys.StateDirName, config.FileName)); err != nil {
		return nil, err
	}
	if err := manifest.AppendGitignore(abs); err != nil {
		return nil, err
	}
	return &App{Root: abs, Config: cfg, Manifest: m, Telemetry: telemetry}, nil
}

func (a *App) mode() (domain.IndexMode, error) {
	source := a.Manifest.IndexMode
	if source == "" {
		source = a.Config.Index.Mode
	}
	return domain.ParseIndexMode(source)
}

func (a *App) collection() (domain.CollectionName, error) {
	if a.Manifest.CollectionName != "" {
		return domain.ParseCollectionName(a.Manifest.CollectionName)
	}
	mode, err := a.mode()
	if err != nil {
		return "", err
	}
	return domain.DeriveCollectionName(a.Root, mode)
}

// buildEmbedder constructs the configured provider wrapped in the
// caching decorator (timeout, retry, in-flight limit, L1/L2 cache).
func (a *App) buildEmbedder() (ports.Embedder, error) {
	inner, err := embed.New(embed.FactoryConfig{
		Provider:   a.Config.Embedding.Provider,
		Model:      a.Config.Embedding.Model,
		Dimension:  a.Config.Embedding.Dimension,
		Timeout:    time.Duration(a.Config.Embedding.TimeoutMs) * time.Millisecond,
		APIKey:     a.Config.Embedding.APIKey,
		BaseURL:    a.Config.Embedding.BaseURL,
		OllamaHost: a.Config.Embedding.OllamaHost,
	})
	if err != nil {
		return nil, err
	}
	if !a.Config.Cache.Enabled {
		return inner, nil
	}

	opts := cache.Options{
		Timeout: time.Duration(a.Config.Embedding.TimeoutMs) * time.Millisecond,
		Retry: errors.RetryPolicy{
			MaxAttempts:    a.Config.Retry.MaxAttempts,
			BaseDelay:      time.Duration(a.Config.Retry.BaseDelayMs) * time.Millisecond,
			MaxDelay:       time.Duration(a.Config.Retry.MaxDelayMs) * time.Millisecond,
			JitterRatioPct: a.Config.Retry.JitterRatioPct,
		},
		MaxInFlight: int64(a.Config.Limits.MaxInFlightEmbeddingBatches),
		Telemetry:   a.Telemetry,
	}
	memory, err := cache.NewMemory(a.Config.Cache.MaxEntries, a.Config.Cache.MaxBytes)
	if err != nil {
		return nil, errors.Invariant("failed to build memory cache").WithCause(err)
	}
	opts.Memory = memory

	if a.Config.Cache.Disk.Enabled {
		path := a.Config.Cache.Disk.Path
		if path == "" {
			path = filepath.Join(a.Root, fsys.StateDirName, "cache", "embeddings.db")
		}
		disk, err := cache.OpenDisk(context.Background(), cache.DiskConfig{
			Path:     path,
			Table:    a.Config.Cache.Disk.Table,
			MaxBytes: a.Config.Cache.Disk.MaxBytes,
		})
		if err != nil {
			return nil, err
		}
		opts.Disk = disk
	}
	return cache.NewCached(inner, opts), nil
}

// buildVectorDB constructs the configured provider, wrapped by the
// fixed-dimension guard when a dimension is configured.
func (a *App) buildVectorDB() (ports.VectorDB, error) {
	db, err := vectordb.New(vectordb.FactoryConfig{
		Provider: a.Config.VectorDB.Provider,
		LocalDir: filepath.Join(a.Root, fsys.StateDirName, "vector"),
		Address:  a.Config.VectorDB.Address,
		Token:    a.Config.VectorDB.Token,
		DBName:   a.Config.VectorDB.DBName,
		Timeout:  time.Duration(a.Config.Embedding.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	if a.Config.Embedding.Dimension > 0 {
		return vectordb.NewFixedDim(db, a.Config.Embedding.Dimension)
	}
	return db, nil
}

// pipelineDeps builds the collaborator set for one run. The returned
// closer releases adapters.
func (a *App) pipelineDeps(ctx context.Context, progress pipeline.ProgressFunc) (pipeline.Deps, func(), error) {
	embedder, err := a.buildEmbedder()
	if err != nil {
		return pipeline.Deps{}, nil, err
	}
	db, err := a.buildVectorDB()
	if err != nil {
		_ = embedder.Close()
		return pipeline.Deps{}, nil, err
	}

	fs := fsys.NewLocal(a.Root)
	deps := pipeline.Deps{
		FS:        fs,
		Policy:    fsys.NewPolicy(),
		Ignore:    fsys.NewMatcherForRoot(ctx, fs, a.Config.Index.IgnorePatterns),
		Splitter:  newSplitter(a.Config),
		Embedder:  embedder,
		VectorDB:  db,
		Telemetry: a.Telemetry,
		Progress:  progress,
	}
	closer := func() {
		_ = embedder.Close()
		_ = db.Close()
	}
	return deps, closer, nil
}

func (a *App) indexInput() (pipeline.IndexInput, error) {
	collection, err := a.collection()
	if err != nil {
		return pipeline.IndexInput{}, err
	}
	mode, err := a.mode()
	if err != nil {
		return pipeline.IndexInput{}, err
	}
	codebaseID, err := domain.DeriveCodebaseID(a.Root)
	if err != nil {
		return pipeline.IndexInput{}, err
	}

	return pipeline.IndexInput{
		Collection:          collection,
		Mode:                mode,
		CodebaseID:          codebaseID,
		SupportedExtensions: a.Config.Index.SupportedExtensions,
		MaxFiles:            a.Config.Index.MaxFiles,
		MaxFileSizeBytes:    a.Config.Index.MaxFileSizeBytes,
		ChunkLimit:          a.Config.Index.ChunkLimit,
		BatchSize:           a.Config.Embedding.BatchSize,
		Dimension:           a.Config.Embedding.Dimension,
		Limits: pipeline.Limits{
			SplitConcurrency:      a.Config.Limits.MaxInFlightFiles,
			EmbedConcurrency:      a.Config.Limits.MaxInFlightEmbeddingBatches,
			InsertConcurrency:     a.Config.Limits.MaxInFlightInserts,
			MaxBufferedChunks:     a.Config.Limits.MaxBufferedChunks,
			MaxBufferedEmbeddings: a.Config.Limits.MaxBufferedEmbeddings,
		},
	}, nil
}

func (a *App) fileSync() (ports.FileSync, error) {
	storage := a.Manifest.SnapshotStorage
	if storage == "" {
		storage = a.Config.Snapshot.Storage
	}
	mode, err := filesync.ParseStorageMode(storage)
	if err != nil {
		return nil, err
	}
	return filesync.NewLocal(a.Root, mode), nil
}

// IndexOptions tune RunIndexLocal.
type IndexOptions struct {
	Force    bool
	Progress pipeline.ProgressFunc
}

// RunIndexLocal indexes the codebase in-process.
func (a *App) RunIndexLocal(req *reqctx.Request, opts IndexOptions) (pipeline.IndexOutput, error) {
	if !a.Initialized() {
		return pipeline.IndexOutput{}, errors.NotFound("manifest").
			WithMeta("hint", "run semcode init first")
	}
	deps, closer, err := a.pipelineDeps(req.Context(), opts.Progress)
	if err != nil {
		return pipeline.IndexOutput{}, err
	}
	defer closer()

	input, err := a.indexInput()
	if err != nil {
		return pipeline.IndexOutput{}, err
	}
	input.ForceReindex = opts.Force

	output, err := pipeline.IndexCodebase(req, deps, input)
	if err != nil {
		return pipeline.IndexOutput{}, err
	}

	// Refresh the snapshot so the next reindex starts from this state.
	if sync, syncErr := a.fileSync(); syncErr == nil {
		if initErr := sync.Initialize(req.Context(), ports.FileSyncInitOptions{
			IgnorePatterns: a.Config.Index.IgnorePatterns,
		}); initErr == nil {
			_, _ = sync.CheckForChanges(req.Context())
		}
	}

	// Refresh manifest timestamps.
	mode, _ := a.mode()
	_, _ = manifest.Init(a.Root, mode, a.Manifest.SnapshotStorage)
	return output, nil
}

// RunReindexLocal runs the Merkle-diff incremental reindex in-process.
func (a *App) RunReindexLocal(req *reqctx.Request, progress pipeline.ProgressFunc) (pipeline.ReindexOutput, error) {
	if !a.Initialized() {
		return pipeline.ReindexOutput{}, errors.NotFound("manifest").
			WithMeta("hint", "run semcode init first")
	}
	deps, closer, err := a.pipelineDeps(req.Context(), progress)
	if err != nil {
		return pipeline.ReindexOutput{}, err
	}
	defer closer()

	sync, err := a.fileSync()
	if err != nil {
		return pipeline.ReindexOutput{}, err
	}
	input, err := a.indexInput()
	if err != nil {
		return pipeline.ReindexOutput{}, err
	}
	return pipeline.ReindexByChange(req,
		pipeline.ReindexDeps{Deps: deps, FileSync: sync},
		input, a.Config.Index.IgnorePatterns)
}

// RunClearLocal drops the collection and snapshot in-process.
func (a *App) RunClearLocal(req *reqctx.Request) error {
	collection, err := a.collection()
	if err != nil {
		return err
	}
	db, err := a.buildVectorDB()
	if err != nil {
		return err
	}
	defer db.Close()

	sync, err := a.fileSync()
	if err != nil {
		return err
	}
	return pipeline.ClearIndex(req, pipeline.ClearDeps{
		VectorDB:  db,
		FileSync:  sync,
		Telemetry: a.Telemetry,
	}, collection)
}

// SearchOptions tune RunSearchLocal.
type SearchOptions struct {
	TopK int
}

// RunSearchLocal embeds a query and searches the collection in-process.
func (a *App) RunSearchLocal(req *reqctx.Request, query string, opts SearchOptions) ([]search.Result, error) {
	if !a.Initialized() {
		return nil, errors.NotFound("manifest").WithMeta("hint", "run semcode init first")
	}
	collection, err := a.collection()
	if err != nil {
		return nil, err
	}
	mode, err := a.mode()
	if err != nil {
		return nil, err
	}

	embedder, err := a.buildEmbedder()
	if err != nil {
		return nil, err
	}
	defer embedder.Close()
	db, err := a.buildVectorDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return search.Run(req, embedder, db, collection, query, search.Options{
		TopK:   opts.TopK,
		Hybrid: mode == domain.IndexModeHybrid,
	})
}

// CollectionExists reports whether the bound collection is present in
// the configured vector database. Errors read as absent.
func (a *App) CollectionExists(req *reqctx.Request) bool {
	collection, err := a.collection()
	if err != nil {
		return false
	}
	db, err := a.buildVectorDB()
	if err != nil {
		return false
	}
	defer db.Close()
	has, err := db.HasCollection(req.Context(), collection)
	return err == nil && has
}

// CreateJob persists a queued background job.
func (a *App) CreateJob(kind jobs.Kind, initIfMissing bool) (jobs.Request, error) {
	return jobs.Create(a.Root, kind, initIfMissing)
}

// CancelJob requests cancellation of a job.
func CancelJob(codebaseRoot, jobID string) error {
	return jobs.Cancel(codebaseRoot, jobID)
}

// ReadJobStatus loads a job's persisted status.
func ReadJobStatus(codebaseRoot, jobID string) (jobs.Status, error) {
	return jobs.ReadStatus(codebaseRoot, jobID)
}

// RunJob executes a queued job to its terminal state.
func RunJob(ctx context.Context, codebaseRoot, jobID string, telemetry ports.Telemetry) (jobs.Status, error) {
	request, err := jobs.ReadRequest(codebaseRoot, jobID)
	if err != nil {
		return jobs.Status{}, err
	}

	app, err := Open(request.CodebaseRoot, telemetry)
	if err != nil {
		return jobs.Status{}, err
	}
	if !app.Initialized() && request.InitIfMissing {
		app, err = Init(request.CodebaseRoot, telemetry)
		if err != nil {
			return jobs.Status{}, err
		}
	}

	opts := jobs.RunnerOptions{
		ProgressInterval:   time.Duration(app.Config.Embedding.Jobs.ProgressIntervalMs) * time.Millisecond,
		CancelPollInterval: time.Duration(app.Config.Embedding.Jobs.CancelPollIntervalMs) * time.Millisecond,
	}

	work := func(req *reqctx.Request, progress pipeline.ProgressFunc) (*jobs.Result, error) {
		switch request.Kind {
		case jobs.KindIndex:
			out, err := app.RunIndexLocal(req, IndexOptions{Progress: progress})
			if err != nil {
				return nil, err
			}
			return &jobs.Result{Index: &jobs.IndexResult{
				IndexedFiles: out.IndexedFiles,
				TotalChunks:  out.TotalChunks,
				IndexStatus:  out.Status,
				StageStats:   out.StageStats,
			}}, nil
		case jobs.KindReindex:
			out, err := app.RunReindexLocal(req, progress)
			if err != nil {
				return nil, err
			}
			return &jobs.Result{Reindex: &jobs.ReindexResult{
				Added:    out.Added,
				Removed:  out.Removed,
				Modified: out.Modified,
			}}, nil
		default:
			return nil, errors.Invariant("unknown job kind").WithMeta("kind", string(request.Kind))
		}
	}

	return jobs.Run(ctx, codebaseRoot, jobID, opts, work)
}

package pipeline

import (
	"context"
	"log/slog"
	"path"
	"time"

	"github.com/Luiz-Frias/semcode/internal/async"
	"github.com/Luiz-Frias/semcode/internal/domain"
	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/ports"
	"github.com/Luiz-Frias/semcode/internal/reqctx"
)

// IndexStatus is the terminal state of an index run.
type IndexStatus string

const (
	// StatusCompleted means every scanned file was processed.
	StatusCompleted IndexStatus = "Completed"
	// StatusLimitReached means the chunk limit stopped enqueueing early.
	StatusLimitReached IndexStatus = "LimitReached"
)

// IndexInput parameterizes one index run.
type IndexInput struct {
	Collection domain.CollectionName
	Mode       domain.IndexMode
	CodebaseID domain.CodebaseID

	// ForceReindex drops the collection before indexing.
	ForceReindex bool

	// FileList restricts the run to these relative paths (reindex path).
	// Empty means scan the whole tree.
	FileList []string

	// SupportedExtensions is the extension allow-list. Empty = all.
	SupportedExtensions []string

	MaxFiles         int
	MaxFileSizeBytes int64
	ChunkLimit       int
	BatchSize        int

	// Dimension is the expected vector dimension; 0 means detect.
	Dimension int

	Limits Limits
}

// Limits caps pipeline concurrency and buffering.
type Limits struct {
	SplitConcurrency      int
	EmbedConcurrency      int
	InsertConcurrency     int
	MaxBufferedChunks     int
	MaxBufferedEmbeddings int
}

func (l Limits) normalized() Limits {
	if l.SplitConcurrency < 1 {
		l.SplitConcurrency = 4
	}
	if l.EmbedConcurrency < 1 {
		l.EmbedConcurrency = 2
	}
	if l.InsertConcurrency < 1 {
		l.InsertConcurrency = 2
	}
	if l.MaxBufferedChunks < 1 {
		l.MaxBufferedChunks = 1024
	}
	if l.MaxBufferedEmbeddings < 1 {
		l.MaxBufferedEmbeddings = l.MaxBufferedChunks
	}
	return l
}

// maxPending translates buffered-chunk budgets into pending batch caps.
func maxPending(concurrency, maxBufferedChunks, batchSize int) int {
	byBuffer := maxBufferedChunks / batchSize
	limit := concurrency * 2
	if byBuffer < limit {
		limit = byBuffer
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// IndexOutput is the result of one index run.
type IndexOutput struct {
	IndexedFiles int         `json:"indexedFiles"`
	TotalChunks  int         `json:"totalChunks"`
	Status       IndexStatus `json:"indexStatus"`
	StageStats   StageStats  `json:"stageStats"`
}

// Deps are the collaborators one run consumes.
type Deps struct {
	FS        ports.FileSystem
	Policy    ports.PathPolicy
	Ignore    ports.Ignore
	Splitter  ports.Splitter
	Embedder  ports.Embedder
	VectorDB  ports.VectorDB
	Telemetry ports.Telemetry
	Progress  ProgressFunc
}

// IndexCodebase runs the scan → split → embed → insert pipeline.
func IndexCodebase(req *reqctx.Request, deps Deps, input IndexInput) (IndexOutput, error) {
	if input.BatchSize < 1 {
		return IndexOutput{}, errors.InvalidInput("embedding batch size must be >= 1")
	}
	if input.ChunkLimit < 1 {
		return IndexOutput{}, errors.InvalidInput("chunk limit must be >= 1")
	}
	limits := input.Limits.normalized()

	stats := &statsCollector{}
	tracker := newProgressTracker(deps.Progress)

	endSpan := func() {}
	if deps.Telemetry != nil {
		endSpan = deps.Telemetry.SpanStart("pipeline.index")
	}
	defer endSpan()

	if err := prepareCollection(req, deps, input); err != nil {
		return IndexOutput{}, err
	}

	// Scan.
	tracker.report("scan", 0, 0, 0)
	allowed := normalizeExtensions(input.SupportedExtensions)
	var files []string
	var err error
	if len(input.FileList) > 0 {
		files, err = validateFileList(deps, allowed, input.FileList)
	} else {
		files, err = scanFiles(req, deps, allowed, input.MaxFiles, stats)
	}
	if err != nil {
		return IndexOutput{}, err
	}

	run := &indexRun{
		req:     req,
		deps:    deps,
		input:   input,
		limits:  limits,
		stats:   stats,
		tracker: tracker,

		splitPool:  async.NewPool[[]domain.CodeChunk]("split", limits.SplitConcurrency),
		embedPool:  async.NewPool[[]ports.VectorDocument]("embed", limits.EmbedConcurrency),
		insertPool: async.NewPool[int]("insert", limits.InsertConcurrency),

		maxPendingEmbeds:  maxPending(limits.EmbedConcurrency, limits.MaxBufferedChunks, input.BatchSize),
		maxPendingInserts: maxPending(limits.InsertConcurrency, limits.MaxBufferedEmbeddings, input.BatchSize),
	}
	// Pools are stopped on every exit path: success, cancel or error.
	defer run.splitPool.Stop()
	defer run.embedPool.Stop()
	defer run.insertPool.Stop()

	result, err := run.process(files)
	if err != nil {
		return IndexOutput{}, err
	}
	tracker.report("insert", result.totalChunks, result.totalChunks, 100)

	status := StatusCompleted
	if result.limitReached {
		status = StatusLimitReached
	}
	return IndexOutput{
		IndexedFiles: result.indexedFiles,
		TotalChunks:  int(result.totalChunks),
		Status:       status,
		StageStats:   stats.snapshot(),
	}, nil
}

// prepareCollection drops (on force) and creates the collection with the
// known dimension.
func prepareCollection(req *reqctx.Request, deps Deps, input IndexInput) error {
	ctx := req.Context()

	if input.ForceReindex {
		if err := req.EnsureNotCancelled("pipeline.prepare"); err != nil {
			return err
		}
		has, err := deps.VectorDB.HasCollection(ctx, input.Collection)
		if err != nil {
			return err
		}
		if has {
			if err := deps.VectorDB.DropCollection(ctx, input.Collection); err != nil {
				return err
			}
		}
	}

	has, err := deps.VectorDB.HasCollection(ctx, input.Collection)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	dimension := input.Dimension
	if dimension <= 0 {
		dimension, err = deps.Embedder.DetectDimension(ctx)
		if err != nil {
			return err
		}
	}
	opts := ports.CollectionOptions{Dimension: dimension}
	if input.Mode == domain.IndexModeHybrid {
		return deps.VectorDB.CreateHybridCollection(ctx, input.Collection, opts)
	}
	return deps.VectorDB.CreateCollection(ctx, input.Collection, opts)
}

// embedJob carries one batch into the embed stage.
type embedJob struct {
	chunks      []domain.CodeChunk
	submittedAt time.Time
}

// indexRun is the mutable state of one pipeline execution. All fields
// are owned by the orchestrating goroutine; pool tasks only touch the
// stats collector, which has its own lock.
type indexRun struct {
	req     *reqctx.Request
	deps    Deps
	input   IndexInput
	limits  Limits
	stats   *statsCollector
	tracker *progressTracker

	splitPool  *async.Pool[[]domain.CodeChunk]
	embedPool  *async.Pool[[]ports.VectorDocument]
	insertPool *async.Pool[int]

	maxPendingEmbeds  int
	maxPendingInserts int

	pendingChunks  []domain.CodeChunk
	pendingEmbeds  []*async.Future[[]ports.VectorDocument]
	pendingInserts []*async.Future[int]

	enqueuedChunks uint64
	totalChunks    uint64
	scannedChunks  uint64
	indexedFiles   int
	limitReached   bool
}

type runResult struct {
	indexedFiles int
	totalChunks  uint64
	limitReached bool
}

type pendingSplit struct {
	file   string
	future *async.Future[[]domain.CodeChunk]
}

// process drives every file through the staged pools. Splits run with
// bounded read-ahead so chunk emission stays in file order while I/O and
// parsing still overlap.
func (r *indexRun) process(files []string) (runResult, error) {
	var splits []pendingSplit
	maxSplits := r.limits.SplitConcurrency * 2

	for _, file := range files {
		if err := r.req.EnsureNotCancelled("pipeline.split"); err != nil {
			return runResult{}, err
		}
		if r.limitReached {
			break
		}
		if len(splits) >= maxSplits {
			var err error
			splits, err = r.drainSplit(splits)
			if err != nil {
				return runResult{}, err
			}
			if r.limitReached {
				break
			}
		}
		future, err := r.splitPool.Submit(r.req.Context(), r.splitTask(file))
		if err != nil {
			return runResult{}, err
		}
		splits = append(splits, pendingSplit{file: file, future: future})
	}

	for len(splits) > 0 && !r.limitReached {
		var err error
		splits, err = r.drainSplit(splits)
		if err != nil {
			return runResult{}, err
		}
	}

	// Final partial batch.
	if len(r.pendingChunks) > 0 {
		batch := r.pendingChunks
		r.pendingChunks = nil
		if err := r.submitEmbed(batch); err != nil {
			return runResult{}, err
		}
	}

	for len(r.pendingEmbeds) > 0 {
		if err := r.drainEmbed(); err != nil {
			return runResult{}, err
		}
	}
	for len(r.pendingInserts) > 0 {
		if err := r.drainInsert(); err != nil {
			return runResult{}, err
		}
	}

	return runResult{
		indexedFiles: r.indexedFiles,
		totalChunks:  r.totalChunks,
		limitReached: r.limitReached,
	}, nil
}

// drainSplit awaits the oldest split and feeds its chunks downstream.
// Split failures are fatal only when they are cancellations.
func (r *indexRun) drainSplit(splits []pendingSplit) ([]pendingSplit, error) {
	head := splits[0]
	rest := splits[1:]

	chunks, err := head.future.Wait(r.req.Context())
	if err != nil {
		if errors.IsCancelled(err) {
			return rest, err
		}
		r.stats.update(func(s *StageStats) { s.Split.Failed++ })
		slog.Warn("failed to split file",
			slog.String("path", head.file),
			slog.String("error", err.Error()))
		return rest, nil
	}
	if chunks == nil {
		// Skipped: too large or empty.
		return rest, nil
	}

	r.stats.update(func(s *StageStats) {
		s.Split.Files++
		s.Split.Chunks += uint64(len(chunks))
	})
	r.indexedFiles++
	r.scannedChunks += uint64(len(chunks))
	return rest, r.enqueueChunks(chunks)
}

// splitTask stats, reads and splits one file.
func (r *indexRun) splitTask(file string) async.Task[[]domain.CodeChunk] {
	return func(ctx context.Context) ([]domain.CodeChunk, error) {
		if err := r.req.EnsureNotCancelled("pipeline.split_task"); err != nil {
			return nil, err
		}
		if r.input.MaxFileSizeBytes > 0 {
			stat, err := r.deps.FS.Stat(r.req.Context(), file)
			if err != nil {
				return nil, err
			}
			if stat.Size > r.input.MaxFileSizeBytes {
				slog.Warn("skipping file over size bound",
					slog.String("path", file),
					slog.Int64("sizeBytes", stat.Size))
				r.stats.update(func(s *StageStats) { s.Split.SkippedTooLarge++ })
				return nil, nil
			}
		}
		content, err := r.deps.FS.ReadFileText(r.req.Context(), file, r.input.MaxFileSizeBytes)
		if err != nil {
			return nil, err
		}
		language := domain.DetectLanguage(file, []byte(content))
		return r.deps.Splitter.Split(r.req.Context(), content, language, file)
	}
}

// enqueueChunks accumulates chunks into exact-size batches, honoring the
// chunk limit: once reached, nothing further is enqueued.
func (r *indexRun) enqueueChunks(chunks []domain.CodeChunk) error {
	for _, chunk := range chunks {
		if r.enqueuedChunks >= uint64(r.input.ChunkLimit) {
			r.limitReached = true
			return nil
		}
		r.pendingChunks = append(r.pendingChunks, chunk)
		r.enqueuedChunks++

		if len(r.pendingChunks) >= r.input.BatchSize {
			batch := r.pendingChunks
			r.pendingChunks = nil
			if err := r.submitEmbed(batch); err != nil {
				return err
			}
		}
	}
	return nil
}

// submitEmbed pushes one batch into the embed pool, draining exactly one
// pending batch first when the cap is reached.
func (r *indexRun) submitEmbed(chunks []domain.CodeChunk) error {
	if len(r.pendingEmbeds) >= r.maxPendingEmbeds {
		if err := r.drainEmbed(); err != nil {
			return err
		}
	}
	job := embedJob{chunks: chunks, submittedAt: time.Now()}
	future, err := r.embedPool.Submit(r.req.Context(), r.embedTask(job))
	if err != nil {
		return err
	}
	r.pendingEmbeds = append(r.pendingEmbeds, future)
	return nil
}

// embedTask turns one chunk batch into vector documents.
func (r *indexRun) embedTask(job embedJob) async.Task[[]ports.VectorDocument] {
	return func(ctx context.Context) ([]ports.VectorDocument, error) {
		if err := r.req.EnsureNotCancelled("pipeline.embed"); err != nil {
			return nil, err
		}
		queueLatency := float64(time.Since(job.submittedAt)) / float64(time.Millisecond)
		if r.deps.Telemetry != nil {
			r.deps.Telemetry.Timer("embed.queue_latency", queueLatency, nil)
		}
		r.stats.update(func(s *StageStats) { s.Embed.QueueLatencyMs += queueLatency })

		texts := make([]string, len(job.chunks))
		for i, chunk := range job.chunks {
			texts[i] = chunk.Content
		}
		vectors, err := r.deps.Embedder.EmbedBatch(r.req.Context(), texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(job.chunks) {
			return nil, errors.Invariant("embedding count does not match batch size")
		}

		docs := make([]ports.VectorDocument, len(job.chunks))
		for i, chunk := range job.chunks {
			id, err := domain.DeriveChunkID(chunk.FilePath, chunk.Span, chunk.Content)
			if err != nil {
				return nil, err
			}
			docs[i] = ports.VectorDocument{
				ID:      domain.DocumentID(id.String()),
				Vector:  vectors[i],
				Content: chunk.Content,
				Metadata: domain.ChunkMetadata{
					RelativePath:  chunk.FilePath,
					StartLine:     chunk.Span.StartLine(),
					EndLine:       chunk.Span.EndLine(),
					Language:      chunk.Language,
					FileExtension: path.Ext(chunk.FilePath),
					CodebaseID:    r.input.CodebaseID.String(),
				},
			}
		}
		return docs, nil
	}
}

// drainEmbed awaits the oldest embed batch (FIFO) and submits it for
// insertion. A failed batch is dropped with a warning, never fatal.
func (r *indexRun) drainEmbed() error {
	head := r.pendingEmbeds[0]
	r.pendingEmbeds = r.pendingEmbeds[1:]

	docs, err := head.Wait(r.req.Context())
	if err != nil {
		if errors.IsCancelled(err) {
			return err
		}
		r.stats.update(func(s *StageStats) { s.Embed.FailedBatches++ })
		slog.Warn("embed batch failed, dropping batch", slog.String("error", err.Error()))
		return nil
	}
	r.stats.update(func(s *StageStats) { s.Embed.Batches++ })
	return r.submitInsert(docs)
}

// submitInsert pushes one embedded batch into the insert pool.
func (r *indexRun) submitInsert(docs []ports.VectorDocument) error {
	if len(r.pendingInserts) >= r.maxPendingInserts {
		if err := r.drainInsert(); err != nil {
			return err
		}
	}
	future, err := r.insertPool.Submit(r.req.Context(), r.insertTask(docs))
	if err != nil {
		return err
	}
	r.pendingInserts = append(r.pendingInserts, future)
	return nil
}

// insertTask stores one embedded batch. Atomic per batch.
func (r *indexRun) insertTask(docs []ports.VectorDocument) async.Task[int] {
	return func(ctx context.Context) (int, error) {
		if err := r.req.EnsureNotCancelled("pipeline.insert"); err != nil {
			return 0, err
		}
		var err error
		if r.input.Mode == domain.IndexModeHybrid {
			err = r.deps.VectorDB.InsertHybrid(r.req.Context(), r.input.Collection, docs)
		} else {
			err = r.deps.VectorDB.Insert(r.req.Context(), r.input.Collection, docs)
		}
		if err != nil {
			return 0, err
		}
		return len(docs), nil
	}
}

// drainInsert awaits the oldest insert (FIFO submission order) and only
// then counts its documents into the run totals and progress.
func (r *indexRun) drainInsert() error {
	head := r.pendingInserts[0]
	r.pendingInserts = r.pendingInserts[1:]

	inserted, err := head.Wait(r.req.Context())
	if err != nil {
		if errors.IsCancelled(err) {
			return err
		}
		r.stats.update(func(s *StageStats) { s.Insert.FailedBatches++ })
		slog.Warn("insert batch failed, dropping batch", slog.String("error", err.Error()))
		return nil
	}

	r.totalChunks += uint64(inserted)
	r.stats.update(func(s *StageStats) {
		s.Insert.Batches++
		s.Insert.Documents += uint64(inserted)
	})

	percentage := uint8(0)
	if r.scannedChunks > 0 {
		percentage = uint8(r.totalChunks * 99 / r.scannedChunks)
	}
	r.tracker.report("insert", r.totalChunks, r.scannedChunks, percentage)
	return nil
}

// Package vectordb provides the vector database adapters: a local
// JSON-snapshot backend (hnsw dense search + bleve BM25 for hybrid), a
// Milvus REST adapter and the fixed-dimension guard wrapper.
package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/coder/hnsw"
	"github.com/google/renameio"

	"github.com/Luiz-Frias/semcode/internal/domain"
	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/ports"
)

// rrfConstant is the reciprocal-rank-fusion smoothing parameter.
const rrfConstant = 60

// localCollectionFile is the persisted snapshot of one collection.
type localCollectionFile struct {
	Dimension int                    `json:"dimension"`
	Hybrid    bool                   `json:"hybrid"`
	Documents []ports.VectorDocument `json:"documents"`
}

// localCollection is the in-memory state of one collection.
type localCollection struct {
	dimension int
	hybrid    bool

	docs  map[string]ports.VectorDocument
	order []string // insertion order, for deterministic persistence

	graph   *hnsw.Graph[string]
	inGraph map[string]bool

	sparse bleve.Index // nil unless hybrid
}

// Local is the JSON-snapshot vector DB. Collections are persisted under
// <dir>/collections/<name>.json; dense search runs on an in-memory HNSW
// graph rebuilt at load time.
type Local struct {
	dir string

	mu          sync.RWMutex
	collections map[string]*localCollection
}

var _ ports.VectorDB = (*Local)(nil)

// NewLocal creates a local backend rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{dir: dir, collections: make(map[string]*localCollection)}
}

// ProviderID identifies the adapter.
func (l *Local) ProviderID() domain.VectorDBProviderID { return "local" }

func (l *Local) collectionPath(name domain.CollectionName) string {
	return filepath.Join(l.dir, "collections", name.String()+".json")
}

func newGraph() *hnsw.Graph[string] {
	graph := hnsw.NewGraph[string]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25
	return graph
}

func newSparseIndex() (bleve.Index, error) {
	mapping := bleve.NewIndexMapping()
	return bleve.NewMemOnly(mapping)
}

// load fetches a collection into memory, reading the snapshot on first
// access. Returns nil when the collection does not exist.
func (l *Local) load(name domain.CollectionName) (*localCollection, error) {
	if col, ok := l.collections[name.String()]; ok {
		return col, nil
	}

	payload, err := os.ReadFile(l.collectionPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.IO(err).WithMeta("collection", name.String())
	}

	var file localCollectionFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeVdbSnapshotCorrupt,
			"failed to parse collection snapshot").
			WithMeta("collection", name.String()).
			WithCause(err)
	}

	col := &localCollection{
		dimension: file.Dimension,
		hybrid:    file.Hybrid,
		docs:      make(map[string]ports.VectorDocument, len(file.Documents)),
		graph:     newGraph(),
		inGraph:   make(map[string]bool),
	}
	if file.Hybrid {
		sparse, err := newSparseIndex()
		if err != nil {
			return nil, errors.Invariant("failed to build sparse index").WithCause(err)
		}
		col.sparse = sparse
	}
	for _, doc := range file.Documents {
		id := doc.ID.String()
		col.docs[id] = doc
		col.order = append(col.order, id)
		col.graph.Add(hnsw.MakeNode(id, normalized(doc.Vector)))
		col.inGraph[id] = true
		if col.sparse != nil {
			if err := col.sparse.Index(id, map[string]any{"content": doc.Content}); err != nil {
				return nil, errors.Invariant("failed to index sparse content").WithCause(err)
			}
		}
	}

	l.collections[name.String()] = col
	return col, nil
}

// persist writes the collection snapshot atomically.
func (l *Local) persist(name domain.CollectionName, col *localCollection) error {
	file := localCollectionFile{Dimension: col.dimension, Hybrid: col.hybrid}
	for _, id := range col.order {
		if doc, ok := col.docs[id]; ok {
			file.Documents = append(file.Documents, doc)
		}
	}

	payload, err := json.Marshal(file)
	if err != nil {
		return errors.Invariant("failed to encode collection snapshot").WithCause(err)
	}
	path := l.collectionPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.IO(err).WithMeta("path", path)
	}
	if err := renameio.WriteFile(path, payload, 0o644); err != nil {
		return errors.IO(err).WithMeta("path", path)
	}
	return nil
}

// HasCollection reports whether the collection exists.
func (l *Local) HasCollection(ctx context.Context, name domain.CollectionName) (bool, error) {
	l.mu.RLock()
	_, inMemory := l.collections[name.String()]
	l.mu.RUnlock()
	if inMemory {
		return true, nil
	}
	_, err := os.Stat(l.collectionPath(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.IO(err).WithMeta("collection", name.String())
}

func (l *Local) createCollection(ctx context.Context, name domain.CollectionName, opts ports.CollectionOptions, hybrid bool) error {
	if err := ctx.Err(); err != nil {
		return errors.Cancelled("vectordb.create_collection").WithCause(err)
	}
	if opts.Dimension <= 0 {
		return errors.InvalidInput("collection dimension must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.load(name)
	if err != nil {
		return err
	}
	if existing != nil {
		return errors.Expected(errors.CodeVdbCollectionExists, "collection already exists").
			WithMeta("collection", name.String())
	}

	col := &localCollection{
		dimension: opts.Dimension,
		hybrid:    hybrid,
		docs:      make(map[string]ports.VectorDocument),
		graph:     newGraph(),
		inGraph:   make(map[string]bool),
	}
	if hybrid {
		sparse, err := newSparseIndex()
		if err != nil {
			return errors.Invariant("failed to build sparse index").WithCause(err)
		}
		col.sparse = sparse
	}
	l.collections[name.String()] = col
	return l.persist(name, col)
}

// CreateCollection creates a dense collection.
func (l *Local) CreateCollection(ctx context.Context, name domain.CollectionName, opts ports.CollectionOptions) error {
	return l.createCollection(ctx, name, opts, false)
}

// CreateHybridCollection creates a dense + sparse collection.
func (l *Local) CreateHybridCollection(ctx context.Context, name domain.CollectionName, opts ports.CollectionOptions) error {
	return l.createCollection(ctx, name, opts, true)
}

// DropCollection removes a collection. Idempotent.
func (l *Local) DropCollection(ctx context.Context, name domain.CollectionName) error {
	if err := ctx.Err(); err != nil {
		return errors.Cancelled("vectordb.drop_collection").WithCause(err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if col, ok := l.collections[name.String()]; ok {
		if col.sparse != nil {
			_ = col.sparse.Close()
		}
		delete(l.collections, name.String())
	}
	if err := os.Remove(l.collectionPath(name)); err != nil && !os.IsNotExist(err) {
		return errors.IO(err).WithMeta("collection", name.String())
	}
	return nil
}

func (l *Local) insert(ctx context.Context, name domain.CollectionName, docs []ports.VectorDocument, hybrid bool) error {
	if err := ctx.Err(); err != nil {
		return errors.Cancelled("vectordb.insert").WithCause(err)
	}
	if len(docs) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	col, err := l.load(name)
	if err != nil {
		return err
	}
	if col == nil {
		return errors.Expected(errors.CodeVdbCollectionMissing, "collection does not exist").
			WithMeta("collection", name.String())
	}
	if hybrid != col.hybrid {
		return errors.InvalidInput("insert mode does not match collection mode").
			WithMeta("collection", name.String())
	}
	for _, doc := range docs {
		if len(doc.Vector) != col.dimension {
			return errors.Expected(errors.CodeVdbDimensionMismatch, "vector dimension does not match collection").
				WithMeta("want", fmt.Sprint(col.dimension)).
				WithMeta("got", fmt.Sprint(len(doc.Vector)))
		}
	}

	for _, doc := range docs {
		id := doc.ID.String()
		if _, exists := col.docs[id]; !exists {
			col.order = append(col.order, id)
		}
		col.docs[id] = doc
		col.graph.Add(hnsw.MakeNode(id, normalized(doc.Vector)))
		col.inGraph[id] = true
		if col.sparse != nil {
			if err := col.sparse.Index(id, map[string]any{"content": doc.Content}); err != nil {
				return errors.Invariant("failed to index sparse content").WithCause(err)
			}
		}
	}
	return l.persist(name, col)
}

// Insert stores documents in a dense collection.
func (l *Local) Insert(ctx context.Context, name domain.CollectionName, docs []ports.VectorDocument) error {
	return l.insert(ctx, name, docs, false)
}

// InsertHybrid stores documents in a hybrid collection.
func (l *Local) InsertHybrid(ctx context.Context, name domain.CollectionName, docs []ports.VectorDocument) error {
	return l.insert(ctx, name, docs, true)
}

// Search returns the topK nearest documents by cosine similarity.
func (l *Local) Search(ctx context.Context, name domain.CollectionName, vector []float32, topK int) ([]ports.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled("vectordb.search").WithCause(err)
	}
	// load may fault the collection into memory, so take the write lock.
	l.mu.Lock()
	defer l.mu.Unlock()

	col, err := l.load(name)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, errors.Expected(errors.CodeVdbCollectionMissing, "collection does not exist").
			WithMeta("collection", name.String())
	}
	if len(vector) != col.dimension {
		return nil, errors.Expected(errors.CodeVdbDimensionMismatch, "query dimension does not match collection").
			WithMeta("want", fmt.Sprint(col.dimension)).
			WithMeta("got", fmt.Sprint(len(vector)))
	}
	return l.denseSearch(col, vector, topK), nil
}

func (l *Local) denseSearch(col *localCollection, vector []float32, topK int) []ports.SearchResult {
	if topK <= 0 || len(col.docs) == 0 {
		return nil
	}
	query := normalized(vector)

	// Over-fetch to compensate for lazily deleted graph nodes.
	nodes := col.graph.Search(query, topK*2)
	results := make([]ports.SearchResult, 0, topK)
	for _, node := range nodes {
		doc, ok := col.docs[node.Key]
		if !ok {
			continue
		}
		results = append(results, ports.SearchResult{
			Document: doc,
			Score:    cosineSimilarity(query, normalized(doc.Vector)),
		})
		if len(results) == topK {
			break
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

// HybridSearch fuses dense and BM25 rankings with reciprocal rank fusion.
func (l *Local) HybridSearch(ctx context.Context, name domain.CollectionName, vector []float32, queryText string, topK int) ([]ports.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled("vectordb.hybrid_search").WithCause(err)
	}
	// load may fault the collection into memory, so take the write lock.
	l.mu.Lock()
	defer l.mu.Unlock()

	col, err := l.load(name)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, errors.Expected(errors.CodeVdbCollectionMissing, "collection does not exist").
			WithMeta("collection", name.String())
	}
	if !col.hybrid || col.sparse == nil {
		return nil, errors.InvalidInput("collection does not support hybrid search").
			WithMeta("collection", name.String())
	}

	fetch := topK * 2
	if fetch < 20 {
		fetch = 20
	}

	dense := l.denseSearch(col, vector, fetch)

	matchQuery := bleve.NewMatchQuery(queryText)
	request := bleve.NewSearchRequest(matchQuery)
	request.Size = fetch
	sparseResult, err := col.sparse.Search(request)
	if err != nil {
		return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeVdbSearchFailed,
			"sparse search failed").WithCause(err)
	}

	// Reciprocal rank fusion over the two rankings.
	type fused struct {
		doc   ports.VectorDocument
		score float32
	}
	scores := make(map[string]*fused)
	for rank, result := range dense {
		id := result.Document.ID.String()
		scores[id] = &fused{doc: result.Document, score: 1 / float32(rrfConstant+rank+1)}
	}
	for rank, hit := range sparseResult.Hits {
		doc, ok := col.docs[hit.ID]
		if !ok {
			continue
		}
		contribution := 1 / float32(rrfConstant+rank+1)
		if entry, ok := scores[hit.ID]; ok {
			entry.score += contribution
		} else {
			scores[hit.ID] = &fused{doc: doc, score: contribution}
		}
	}

	results := make([]ports.SearchResult, 0, len(scores))
	for _, entry := range scores {
		results = append(results, ports.SearchResult{Document: entry.doc, Score: entry.score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.ID < results[j].Document.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete removes documents by id. Graph nodes are orphaned lazily.
func (l *Local) Delete(ctx context.Context, name domain.CollectionName, ids []domain.DocumentID) error {
	if err := ctx.Err(); err != nil {
		return errors.Cancelled("vectordb.delete").WithCause(err)
	}
	if len(ids) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	col, err := l.load(name)
	if err != nil {
		return err
	}
	if col == nil {
		return errors.Expected(errors.CodeVdbCollectionMissing, "collection does not exist").
			WithMeta("collection", name.String())
	}

	for _, id := range ids {
		raw := id.String()
		if _, ok := col.docs[raw]; !ok {
			continue
		}
		delete(col.docs, raw)
		delete(col.inGraph, raw)
		if col.sparse != nil {
			_ = col.sparse.Delete(raw)
		}
	}
	return l.persist(name, col)
}

// Query returns documents matching the metadata equality filter.
func (l *Local) Query(ctx context.Context, name domain.CollectionName, filter ports.Filter, outputFields []string, limit int) ([]ports.VectorDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled("vectordb.query").WithCause(err)
	}
	// load may fault the collection into memory, so take the write lock.
	l.mu.Lock()
	defer l.mu.Unlock()

	col, err := l.load(name)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, errors.Expected(errors.CodeVdbCollectionMissing, "collection does not exist").
			WithMeta("collection", name.String())
	}

	var out []ports.VectorDocument
	for _, id := range col.order {
		doc, ok := col.docs[id]
		if !ok {
			continue
		}
		if !matchesFilter(doc, filter) {
			continue
		}
		out = append(out, projectDocument(doc, outputFields))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Close releases sparse indexes.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, col := range l.collections {
		if col.sparse != nil {
			_ = col.sparse.Close()
		}
	}
	l.collections = make(map[string]*localCollection)
	return nil
}

func matchesFilter(doc ports.VectorDocument, filter ports.Filter) bool {
	if filter.Field == "" {
		return true
	}
	switch filter.Field {
	case "relativePath":
		return doc.Metadata.RelativePath == filter.Equals
	case "language":
		return doc.Metadata.Language.String() == filter.Equals
	case "fileExtension":
		return doc.Metadata.FileExtension == filter.Equals
	case "codebaseId":
		return doc.Metadata.CodebaseID == filter.Equals
	case "id":
		return doc.ID.String() == filter.Equals
	default:
		return false
	}
}

// projectDocument keeps only the requested fields; "id" is always kept.
func projectDocument(doc ports.VectorDocument, outputFields []string) ports.VectorDocument {
	if len(outputFields) == 0 {
		return doc
	}
	wants := func(field string) bool {
		for _, f := range outputFields {
			if strings.EqualFold(f, field) {
				return true
			}
		}
		return false
	}
	out := ports.VectorDocument{ID: doc.ID}
	if wants("vector") {
		out.Vector = doc.Vector
	}
	if wants("content") {
		out.Content = doc.Content
	}
	if wants("metadata") || wants("relativePath") {
		out.Metadata = doc.Metadata
	}
	return out
}

func normalized(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

func cosineSimilarity(a, b []float32) float32 {
	var dot float32
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += a[i] * b[i]
	}
	return dot
}

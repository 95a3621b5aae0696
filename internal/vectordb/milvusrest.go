package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Luiz-Frias/semcode/internal/domain"
	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/ports"
	"github.com/Luiz-Frias/semcode/internal/redact"
)

// MilvusRestConfig configures the Milvus REST adapter.
type MilvusRestConfig struct {
	// BaseURL is the Milvus HTTP endpoint, e.g. http://localhost:19530.
	BaseURL string
	// Token authenticates against Milvus (optional).
	Token redact.Secret
	// DBName selects the database (optional).
	DBName string
	// Timeout bounds each request.
	Timeout time.Duration
}

// MilvusRest talks to Milvus through its v2 REST API.
type MilvusRest struct {
	client *http.Client
	config MilvusRestConfig
}

var _ ports.VectorDB = (*MilvusRest)(nil)

// NewMilvusRest creates a Milvus REST adapter.
func NewMilvusRest(cfg MilvusRestConfig) *MilvusRest {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &MilvusRest{client: &http.Client{}, config: cfg}
}

// ProviderID identifies the adapter.
func (m *MilvusRest) ProviderID() domain.VectorDBProviderID { return "milvus_rest" }

type milvusResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// post issues one REST call and decodes the Milvus response envelope.
func (m *MilvusRest) post(ctx context.Context, endpoint string, body map[string]any, operation string) (json.RawMessage, error) {
	if m.config.DBName != "" {
		body["dbName"] = m.config.DBName
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Invariant("failed to encode request").WithCause(err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, m.config.BaseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Invariant("failed to build request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if !m.config.Token.Empty() {
		req.Header.Set("Authorization", "Bearer "+m.config.Token.Expose())
	}

	resp, err := m.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Cancelled(operation).WithCause(ctx.Err())
		}
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, errors.Timeout(operation).WithCause(err)
		}
		return nil, errors.Unexpected(errors.ClassRetriable, errors.CodeVdbRequestFailed, err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.IO(err).WithMeta("operation", operation)
	}
	if resp.StatusCode != http.StatusOK {
		class := errors.ClassNonRetriable
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			class = errors.ClassRetriable
		}
		return nil, errors.Unexpected(class, errors.CodeVdbRequestFailed,
			fmt.Sprintf("milvus returned status %d", resp.StatusCode)).
			WithMeta("status", fmt.Sprint(resp.StatusCode)).
			WithMeta("operation", operation)
	}

	var decoded milvusResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeVdbRequestFailed,
			"failed to decode milvus response").WithCause(err)
	}
	if decoded.Code != 0 {
		return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeVdbRequestFailed, decoded.Message).
			WithMeta("code", fmt.Sprint(decoded.Code)).
			WithMeta("operation", operation)
	}
	return decoded.Data, nil
}

// HasCollection reports whether the collection exists.
func (m *MilvusRest) HasCollection(ctx context.Context, name domain.CollectionName) (bool, error) {
	data, err := m.post(ctx, "/v2/vectordb/collections/has",
		map[string]any{"collectionName": name.String()}, "milvus.has_collection")
	if err != nil {
		return false, err
	}
	var decoded struct {
		Has bool `json:"has"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return false, errors.Unexpected(errors.ClassNonRetriable, errors.CodeVdbRequestFailed,
			"failed to decode has response").WithCause(err)
	}
	return decoded.Has, nil
}

func (m *MilvusRest) createSchema(opts ports.CollectionOptions, hybrid bool) map[string]any {
	fields := []map[string]any{
		{"fieldName": "id", "dataType": "VarChar", "isPrimary": true,
			"elementTypeParams": map[string]any{"max_length": 128}},
		{"fieldName": "vector", "dataType": "FloatVector",
			"elementTypeParams": map[string]any{"dim": opts.Dimension}},
		{"fieldName": "content", "dataType": "VarChar",
			"elementTypeParams": map[string]any{"max_length": 65535}},
		{"fieldName": "relativePath", "dataType": "VarChar",
			"elementTypeParams": map[string]any{"max_length": 1024}},
		{"fieldName": "metadata", "dataType": "JSON"},
	}
	schema := map[string]any{}
	if hybrid {
		fields[2]["elementTypeParams"] = map[string]any{"max_length": 65535, "enable_analyzer": true}
		fields = append(fields, map[string]any{"fieldName": "sparse", "dataType": "SparseFloatVector"})
		schema["functions"] = []map[string]any{{
			"name":             "content_bm25",
			"type":             "BM25",
			"inputFieldNames":  []string{"content"},
			"outputFieldNames": []string{"sparse"},
			"params":           map[string]any{},
		}}
	}
	schema["fields"] = fields

	dense := map[string]any{
		"fieldName":  "vector",
		"indexName":  "vector_index",
		"metricType": metricOrDefault(opts.Dense.MetricType, "COSINE"),
	}
	if opts.Dense.IndexType != "" {
		dense["indexType"] = opts.Dense.IndexType
	}
	indexParams := []map[string]any{dense}
	if hybrid {
		sparse := map[string]any{
			"fieldName":  "sparse",
			"indexName":  "sparse_index",
			"metricType": metricOrDefault(opts.Sparse.MetricType, "BM25"),
		}
		if opts.Sparse.IndexType != "" {
			sparse["indexType"] = opts.Sparse.IndexType
		}
		indexParams = append(indexParams, sparse)
	}

	return map[string]any{
		"schema":      schema,
		"indexParams": indexParams,
	}
}

func metricOrDefault(metric, fallback string) string {
	if metric == "" {
		return fallback
	}
	return metric
}

func (m *MilvusRest) createCollection(ctx context.Context, name domain.CollectionName, opts ports.CollectionOptions, hybrid bool) error {
	body := map[string]any{"collectionName": name.String()}
	for key, value := range m.createSchema(opts, hybrid) {
		body[key] = value
	}
	_, err := m.post(ctx, "/v2/vectordb/collections/create", body, "milvus.create_collection")
	return err
}

// CreateCollection creates a dense collection.
func (m *MilvusRest) CreateCollection(ctx context.Context, name domain.CollectionName, opts ports.CollectionOptions) error {
	return m.createCollection(ctx, name, opts, false)
}

// CreateHybridCollection creates a dense + sparse collection.
func (m *MilvusRest) CreateHybridCollection(ctx context.Context, name domain.CollectionName, opts ports.CollectionOptions) error {
	return m.createCollection(ctx, name, opts, true)
}

// DropCollection removes a collection. Idempotent on the Milvus side.
func (m *MilvusRest) DropCollection(ctx context.Context, name domain.CollectionName) error {
	_, err := m.post(ctx, "/v2/vectordb/collections/drop",
		map[string]any{"collectionName": name.String()}, "milvus.drop_collection")
	return err
}

func documentRow(doc ports.VectorDocument) map[string]any {
	metadata, _ := json.Marshal(doc.Metadata)
	return map[string]any{
		"id":           doc.ID.String(),
		"vector":       doc.Vector,
		"content":      doc.Content,
		"relativePath": doc.Metadata.RelativePath,
		"metadata":     json.RawMessage(metadata),
	}
}

func (m *MilvusRest) insert(ctx context.Context, name domain.CollectionName, docs []ports.VectorDocument) error {
	if len(docs) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, documentRow(doc))
	}
	_, err := m.post(ctx, "/v2/vectordb/entities/insert",
		map[string]any{"collectionName": name.String(), "data": rows}, "milvus.insert")
	return err
}

// Insert stores documents in a dense collection.
func (m *MilvusRest) Insert(ctx context.Context, name domain.CollectionName, docs []ports.VectorDocument) error {
	return m.insert(ctx, name, docs)
}

// InsertHybrid stores documents in a hybrid collection. The sparse side
// is computed server-side by the BM25 function on content.
func (m *MilvusRest) InsertHybrid(ctx context.Context, name domain.CollectionName, docs []ports.VectorDocument) error {
	return m.insert(ctx, name, docs)
}

type milvusHit struct {
	ID           string          `json:"id"`
	Distance     float32         `json:"distance"`
	Content      string          `json:"content"`
	RelativePath string          `json:"relativePath"`
	Metadata     json.RawMessage `json:"metadata"`
}

func hitToResult(hit milvusHit) ports.SearchResult {
	doc := ports.VectorDocument{
		ID:      domain.DocumentID(hit.ID),
		Content: hit.Content,
	}
	if len(hit.Metadata) > 0 {
		_ = json.Unmarshal(hit.Metadata, &doc.Metadata)
	}
	if doc.Metadata.RelativePath == "" {
		doc.Metadata.RelativePath = hit.RelativePath
	}
	return ports.SearchResult{Document: doc, Score: hit.Distance}
}

// Search returns the topK nearest documents for a query vector.
func (m *MilvusRest) Search(ctx context.Context, name domain.CollectionName, vector []float32, topK int) ([]ports.SearchResult, error) {
	data, err := m.post(ctx, "/v2/vectordb/entities/search", map[string]any{
		"collectionName": name.String(),
		"data":           [][]float32{vector},
		"annsField":      "vector",
		"limit":          topK,
		"outputFields":   []string{"content", "relativePath", "metadata"},
	}, "milvus.search")
	if err != nil {
		return nil, err
	}
	var hits []milvusHit
	if err := json.Unmarshal(data, &hits); err != nil {
		return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeVdbSearchFailed,
			"failed to decode search response").WithCause(err)
	}
	results := make([]ports.SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, hitToResult(hit))
	}
	return results, nil
}

// HybridSearch runs dense + sparse search with server-side RRF ranking.
func (m *MilvusRest) HybridSearch(ctx context.Context, name domain.CollectionName, vector []float32, queryText string, topK int) ([]ports.SearchResult, error) {
	data, err := m.post(ctx, "/v2/vectordb/entities/advanced_search", map[string]any{
		"collectionName": name.String(),
		"search": []map[string]any{
			{"data": [][]float32{vector}, "annsField": "vector", "limit": topK * 2},
			{"data": []string{queryText}, "annsField": "sparse", "limit": topK * 2},
		},
		"rerank":       map[string]any{"strategy": "rrf", "params": map[string]any{"k": rrfConstant}},
		"limit":        topK,
		"outputFields": []string{"content", "relativePath", "metadata"},
	}, "milvus.hybrid_search")
	if err != nil {
		return nil, err
	}
	var hits []milvusHit
	if err := json.Unmarshal(data, &hits); err != nil {
		return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeVdbSearchFailed,
			"failed to decode hybrid search response").WithCause(err)
	}
	results := make([]ports.SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, hitToResult(hit))
	}
	return results, nil
}

// escapeFilterValue quotes a literal for a Milvus filter expression.
func escapeFilterValue(value string) string {
	replaced := strings.ReplaceAll(value, `\`, `\\`)
	replaced = strings.ReplaceAll(replaced, `"`, `\"`)
	return `"` + replaced + `"`
}

// Delete removes documents by id.
func (m *MilvusRest) Delete(ctx context.Context, name domain.CollectionName, ids []domain.DocumentID) error {
	if len(ids) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(ids))
	for _, id := range ids {
		quoted = append(quoted, escapeFilterValue(id.String()))
	}
	filter := fmt.Sprintf("id in [%s]", strings.Join(quoted, ", "))
	_, err := m.post(ctx, "/v2/vectordb/entities/delete",
		map[string]any{"collectionName": name.String(), "filter": filter}, "milvus.delete")
	return err
}

// Query returns documents matching the equality filter.
func (m *MilvusRest) Query(ctx context.Context, name domain.CollectionName, filter ports.Filter, outputFields []string, limit int) ([]ports.VectorDocument, error) {
	expression := fmt.Sprintf("%s == %s", filter.Field, escapeFilterValue(filter.Equals))
	if len(outputFields) == 0 {
		outputFields = []string{"content", "relativePath", "metadata"}
	}
	data, err := m.post(ctx, "/v2/vectordb/entities/query", map[string]any{
		"collectionName": name.String(),
		"filter":         expression,
		"outputFields":   outputFields,
		"limit":          limit,
	}, "milvus.query")
	if err != nil {
		return nil, err
	}
	var hits []milvusHit
	if err := json.Unmarshal(data, &hits); err != nil {
		return nil, errors.Unexpected(errors.ClassNonRetriable, errors.CodeVdbQueryFailed,
			"failed to decode query response").WithCause(err)
	}
	docs := make([]ports.VectorDocument, 0, len(hits))
	for _, hit := range hits {
		docs = append(docs, hitToResult(hit).Document)
	}
	return docs, nil
}

// Close releases pooled connections.
func (m *MilvusRest) Close() error {
	m.client.CloseIdleConnections()
	return nil
}

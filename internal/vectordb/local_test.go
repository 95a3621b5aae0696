package vectordb

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luiz-Frias/semcode/internal/domain"
	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/ports"
)

func testDoc(id string, vector []float32, content, path string) ports.VectorDocument {
	return ports.VectorDocument{
		ID:      domain.DocumentID(id),
		Vector:  vector,
		Content: content,
		Metadata: domain.ChunkMetadata{
			RelativePath: path,
			StartLine:    1,
			EndLine:      2,
			Language:     "go",
		},
	}
}

func mustName(t *testing.T, raw string) domain.CollectionName {
	t.Helper()
	name, err := domain.ParseCollectionName(raw)
	require.NoError(t, err)
	return name
}

func TestLocalCollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	db := NewLocal(t.TempDir())
	defer db.Close()
	name := mustName(t, "code_chunks_test")

	has, err := db.HasCollection(ctx, name)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, db.CreateCollection(ctx, name, ports.CollectionOptions{Dimension: 3}))

	has, err = db.HasCollection(ctx, name)
	require.NoError(t, err)
	assert.True(t, has)

	// Creating again fails.
	err = db.CreateCollection(ctx, name, ports.CollectionOptions{Dimension: 3})
	require.Error(t, err)
	assert.Equal(t, errors.CodeVdbCollectionExists, errors.CodeOf(err))

	// Dropping twice is idempotent.
	require.NoError(t, db.DropCollection(ctx, name))
	require.NoError(t, db.DropCollection(ctx, name))
}

func TestLocalInsertAndSearch(t *testing.T) {
	ctx := context.Background()
	db := NewLocal(t.TempDir())
	defer db.Close()
	name := mustName(t, "code_chunks_search")

	require.NoError(t, db.CreateCollection(ctx, name, ports.CollectionOptions{Dimension: 3}))
	require.NoError(t, db.Insert(ctx, name, []ports.VectorDocument{
		testDoc("chunk_0000000000000001", []float32{1, 0, 0}, "func main() {}", "src/main.rs"),
		testDoc("chunk_0000000000000002", []float32{0, 1, 0}, "pub fn lib() {}", "src/lib.rs"),
	}))

	results, err := db.Search(ctx, name, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "src/lib.rs", results[0].Document.Metadata.RelativePath)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.01)
}

func TestLocalSearchDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	db := NewLocal(t.TempDir())
	defer db.Close()
	name := mustName(t, "code_chunks_dim")

	require.NoError(t, db.CreateCollection(ctx, name, ports.CollectionOptions{Dimension: 3}))
	_, err := db.Search(ctx, name, []float32{1, 2}, 5)
	require.Error(t, err)
	assert.Equal(t, errors.CodeVdbDimensionMismatch, errors.CodeOf(err))
}

func TestLocalPersistenceAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	name := mustName(t, "code_chunks_persist")

	first := NewLocal(dir)
	require.NoError(t, first.CreateCollection(ctx, name, ports.CollectionOptions{Dimension: 2}))
	require.NoError(t, first.Insert(ctx, name, []ports.VectorDocument{
		testDoc("chunk_000000000000000a", []float32{1, 0}, "alpha", "a.go"),
	}))
	require.NoError(t, first.Close())

	second := NewLocal(dir)
	defer second.Close()
	results, err := second.Search(ctx, name, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.go", results[0].Document.Metadata.RelativePath)
}

func TestLocalDeleteAndQueryByPath(t *testing.T) {
	ctx := context.Background()
	db := NewLocal(t.TempDir())
	defer db.Close()
	name := mustName(t, "code_chunks_delete")

	require.NoError(t, db.CreateCollection(ctx, name, ports.CollectionOptions{Dimension: 2}))
	require.NoError(t, db.Insert(ctx, name, []ports.VectorDocument{
		testDoc("chunk_0000000000000001", []float32{1, 0}, "one", "src/main.rs"),
		testDoc("chunk_0000000000000002", []float32{0, 1}, "two", "src/main.rs"),
		testDoc("chunk_0000000000000003", []float32{1, 1}, "three", "src/lib.rs"),
	}))

	docs, err := db.Query(ctx, name, ports.Filter{Field: "relativePath", Equals: "src/main.rs"}, nil, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	var ids []domain.DocumentID
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	require.NoError(t, db.Delete(ctx, name, ids))

	docs, err = db.Query(ctx, name, ports.Filter{Field: "relativePath", Equals: "src/main.rs"}, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, docs)

	// Deleted documents never reappear in search results.
	results, err := db.Search(ctx, name, []float32{1, 0}, 10)
	require.NoError(t, err)
	for _, result := range results {
		assert.NotEqual(t, "src/main.rs", result.Document.Metadata.RelativePath)
	}
}

func TestLocalHybridSearch(t *testing.T) {
	ctx := context.Background()
	db := NewLocal(t.TempDir())
	defer db.Close()
	name := mustName(t, "hybrid_code_chunks_x")

	require.NoError(t, db.CreateHybridCollection(ctx, name, ports.CollectionOptions{Dimension: 2}))
	require.NoError(t, db.InsertHybrid(ctx, name, []ports.VectorDocument{
		testDoc("chunk_0000000000000001", []float32{1, 0}, "database connection pooling", "db.go"),
		testDoc("chunk_0000000000000002", []float32{0, 1}, "http request router", "router.go"),
	}))

	results, err := db.HybridSearch(ctx, name, []float32{0.9, 0.1}, "database pooling", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "db.go", results[0].Document.Metadata.RelativePath)
}

func TestLocalHybridSearchOnDenseCollectionFails(t *testing.T) {
	ctx := context.Background()
	db := NewLocal(t.TempDir())
	defer db.Close()
	name := mustName(t, "code_chunks_densely")

	require.NoError(t, db.CreateCollection(ctx, name, ports.CollectionOptions{Dimension: 2}))
	_, err := db.HybridSearch(ctx, name, []float32{1, 0}, "q", 5)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.CodeOf(err))
}

func TestLocalInsertIntoMissingCollection(t *testing.T) {
	ctx := context.Background()
	db := NewLocal(t.TempDir())
	defer db.Close()

	err := db.Insert(ctx, mustName(t, "nope"), []ports.VectorDocument{
		testDoc("chunk_0000000000000001", []float32{1}, "x", "x.go"),
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeVdbCollectionMissing, errors.CodeOf(err))
}

func TestFixedDimRejectsBeforeInner(t *testing.T) {
	ctx := context.Background()
	inner := NewLocal(t.TempDir())
	defer inner.Close()

	fixed, err := NewFixedDim(inner, 4)
	require.NoError(t, err)
	name := mustName(t, "code_chunks_fixed")

	require.NoError(t, fixed.CreateCollection(ctx, name, ports.CollectionOptions{}))

	// Wrong insert dimension is rejected with core:invalid_input and the
	// inner collection stays empty.
	err = fixed.Insert(ctx, name, []ports.VectorDocument{
		testDoc("chunk_0000000000000001", []float32{1, 2}, "x", "x.go"),
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.CodeOf(err))

	docs, err := inner.Query(ctx, name, ports.Filter{}, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = fixed.Search(ctx, name, []float32{1, 2, 3}, 1)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.CodeOf(err))

	err = fixed.CreateCollection(ctx, mustName(t, "other"), ports.CollectionOptions{Dimension: 8})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.CodeOf(err))
}

func TestFactory(t *testing.T) {
	db, err := New(FactoryConfig{Provider: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "local", db.ProviderID().String())
	require.NoError(t, db.Close())

	db, err = New(FactoryConfig{Provider: "milvus_rest", Address: "http://localhost:19530"})
	require.NoError(t, err)
	assert.Equal(t, "milvus_rest", db.ProviderID().String())
	require.NoError(t, db.Close())

	_, err = New(FactoryConfig{Provider: "chroma"})
	require.Error(t, err)
}

func TestEscapeFilterValue(t *testing.T) {
	assert.Equal(t, `"plain"`, escapeFilterValue("plain"))
	assert.Equal(t, `"with \"quotes\""`, escapeFilterValue(`with "quotes"`))
	assert.Equal(t, fmt.Sprintf("%q", `back\slash`), escapeFilterValue(`back\slash`))
}

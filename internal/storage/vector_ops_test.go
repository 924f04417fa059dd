package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

func TestSearchVector(t *testing.T) {
	storage := setupTestDB(t)
	ids := insertTestChunks(t, storage)
	ctx := context.Background()

	results, err := storage.SearchVector(ctx, "Apollo", []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3, "other projects are excluded")
	assert.Equal(t, ids[0], results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-6)
	assert.Equal(t, ids[2], results[1].ChunkID)
	assert.Equal(t, ids[1], results[2].ChunkID)
	assert.InDelta(t, 0.0, results[2].SimilarityScore, 1e-6)

	limited, err := storage.SearchVector(ctx, "Apollo", []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, ids[0], limited[0].ChunkID)
}

func TestSearchVector_Filters(t *testing.T) {
	storage := setupTestDB(t)
	ids := insertTestChunks(t, storage)
	ctx := context.Background()

	results, err := storage.SearchVector(ctx, "Apollo", []float32{1, 0, 0}, 10, &SearchFilters{SourceTypes: []types.SourceType{types.SourceWorkItem}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ids[2], results[0].ChunkID)

	results, err = storage.SearchVector(ctx, "Apollo", []float32{1, 0, 0}, 10, &SearchFilters{SourceIDs: []string{"doc-1"}})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchVector_DimensionMismatch(t *testing.T) {
	storage := setupTestDB(t)
	insertTestChunks(t, storage)

	results, err := storage.SearchVector(context.Background(), "Apollo", []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = storage.SearchVector(context.Background(), "Apollo", nil, 10, nil)
	assert.Error(t, err)
}

func TestSearchText(t *testing.T) {
	storage := setupTestDB(t)
	ids := insertTestChunks(t, storage)
	ctx := context.Background()

	results, err := storage.SearchText(ctx, "Apollo", "exporter capacity", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	got := []int64{results[0].ChunkID, results[1].ChunkID}
	assert.ElementsMatch(t, []int64{ids[0], ids[2]}, got)
	for _, r := range results {
		assert.Greater(t, r.BM25Score, 0.0)
		assert.LessOrEqual(t, r.BM25Score, 1.0)
	}

	filtered, err := storage.SearchText(ctx, "Apollo", "capacity", 10, &SearchFilters{SourceTypes: []types.SourceType{types.SourceDocument}})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, ids[0], filtered[0].ChunkID)
}

func TestSearchText_OperatorsAreLiteral(t *testing.T) {
	storage := setupTestDB(t)
	insertTestChunks(t, storage)

	// Would be a syntax error if passed to MATCH unquoted
	results, err := storage.SearchText(context.Background(), "Apollo", `rollback AND (NOT "steps*`, 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	_, err = storage.SearchText(context.Background(), "Apollo", "  ?! ", 10, nil)
	assert.Error(t, err)
}

func TestSanitizeFTSQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"sprint", `"sprint"`},
		{"Sprint capacity", `"Sprint" OR "capacity"`},
		{`a "quoted" (group)*`, `"a" OR "quoted" OR "group"`},
		{"NOT near", `"NOT" OR "near"`},
		{"dup Dup dup", `"dup"`},
		{"ação café", `"ação" OR "café"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFTSQuery(tt.in), tt.in)
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 1}))
}

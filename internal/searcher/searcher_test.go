package searcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/embedder"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/storage"
	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

// mockIndex is a testify mock of the storage reads used by the searcher
type mockIndex struct {
	mock.Mock
}

func (m *mockIndex) SearchVector(ctx context.Context, projectID string, vector []float32, limit int, filters *storage.SearchFilters) ([]storage.VectorResult, error) {
	args := m.Called(ctx, projectID, vector, limit, filters)
	res, _ := args.Get(0).([]storage.VectorResult)
	return res, args.Error(1)
}

func (m *mockIndex) SearchText(ctx context.Context, projectID string, query string, limit int, filters *storage.SearchFilters) ([]storage.TextResult, error) {
	args := m.Called(ctx, projectID, query, limit, filters)
	res, _ := args.Get(0).([]storage.TextResult)
	return res, args.Error(1)
}

func (m *mockIndex) GetChunks(ctx context.Context, chunkIDs []int64) (map[int64]*types.DocumentChunk, error) {
	args := m.Called(ctx, chunkIDs)
	res, _ := args.Get(0).(map[int64]*types.DocumentChunk)
	return res, args.Error(1)
}

// failingEmbedder fails every call
type failingEmbedder struct{}

func (failingEmbedder) GenerateEmbedding(context.Context, embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	return nil, embedder.ErrProviderFailed
}

func (failingEmbedder) GenerateBatch(context.Context, embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	return nil, embedder.ErrProviderFailed
}

func (failingEmbedder) Dimension() int   { return 8 }
func (failingEmbedder) Provider() string { return "failing" }
func (failingEmbedder) Model() string    { return "failing" }
func (failingEmbedder) Close() error     { return nil }

func newLocalEmbedder(t *testing.T) embedder.Embedder {
	t.Helper()
	emb, err := embedder.NewLocalProvider(64, nil)
	require.NoError(t, err)
	return emb
}

func chunkMap(ids ...int64) map[int64]*types.DocumentChunk {
	chunks := make(map[int64]*types.DocumentChunk, len(ids))
	for _, id := range ids {
		chunks[id] = &types.DocumentChunk{
			ID:         id,
			Content:    "chunk content",
			SourceType: types.SourceDocument,
			Metadata:   json.RawMessage(`{"section":"Intro"}`),
		}
	}
	return chunks
}

func TestSearch_Validation(t *testing.T) {
	s := New(&mockIndex{}, newLocalEmbedder(t), Options{}, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"empty query", Request{ProjectID: "Apollo", Query: " \x00\n"}, ErrEmptyQuery},
		{"missing project", Request{Query: "capacity"}, ErrMissingProject},
		{"unknown source type", Request{ProjectID: "Apollo", Query: "capacity", SourceTypes: []types.SourceType{"email"}}, types.ErrInvalidSourceType},
		{"negative weight", Request{ProjectID: "Apollo", Query: "capacity", Weights: Weights{VectorWeight: -1, FullTextWeight: 1}}, ErrInvalidWeights},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Search(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSearch_FusesBothLegs(t *testing.T) {
	idx := &mockIndex{}
	idx.On("SearchVector", mock.Anything, "Apollo", mock.Anything, 3, mock.Anything).
		Return([]storage.VectorResult{{ChunkID: 1}, {ChunkID: 2}, {ChunkID: 3}}, nil)
	idx.On("SearchText", mock.Anything, "Apollo", "capacity planning", 3, mock.Anything).
		Return([]storage.TextResult{{ChunkID: 2}, {ChunkID: 4}}, nil)
	idx.On("GetChunks", mock.Anything, []int64{2, 1, 3}).Return(chunkMap(1, 2, 3), nil)

	s := New(idx, newLocalEmbedder(t), Options{}, nil, nil)
	results, err := s.Search(context.Background(), Request{ProjectID: "Apollo", Query: "capacity  planning", TopK: 3})

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int64(2), results[0].ID)
	assert.Equal(t, types.MatchHybrid, results[0].MatchType)
	assert.InDelta(t, 0.7/62+0.3/61, results[0].Score, 1e-12)
	assert.Equal(t, types.MatchVector, results[1].MatchType)
	assert.Equal(t, "chunk content", results[0].Content)
	assert.JSONEq(t, `{"section":"Intro"}`, string(results[0].Metadata))
	idx.AssertExpectations(t)
}

func TestSearch_PassesSourceTypeFilter(t *testing.T) {
	idx := &mockIndex{}
	wantFilters := &storage.SearchFilters{SourceTypes: []types.SourceType{types.SourceWiki}}
	idx.On("SearchVector", mock.Anything, "Apollo", mock.Anything, DefaultTopK, wantFilters).Return([]storage.VectorResult{}, nil)
	idx.On("SearchText", mock.Anything, "Apollo", "runbook", DefaultTopK, wantFilters).Return([]storage.TextResult{}, nil)

	s := New(idx, newLocalEmbedder(t), Options{}, nil, nil)
	results, err := s.Search(context.Background(), Request{ProjectID: "Apollo", Query: "runbook", SourceTypes: []types.SourceType{types.SourceWiki}})

	require.NoError(t, err)
	assert.Empty(t, results)
	idx.AssertExpectations(t)
	idx.AssertNotCalled(t, "GetChunks", mock.Anything, mock.Anything)
}

func TestSearch_VectorLegFailureDegrades(t *testing.T) {
	idx := &mockIndex{}
	idx.On("SearchText", mock.Anything, "Apollo", "capacity", DefaultTopK, mock.Anything).
		Return([]storage.TextResult{{ChunkID: 7}, {ChunkID: 8}}, nil)
	idx.On("GetChunks", mock.Anything, []int64{7, 8}).Return(chunkMap(7, 8), nil)

	s := New(idx, failingEmbedder{}, Options{}, nil, nil)
	results, err := s.Search(context.Background(), Request{ProjectID: "Apollo", Query: "capacity"})

	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, types.MatchFullText, r.MatchType)
	}
	idx.AssertNotCalled(t, "SearchVector", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSearch_TextLegFailureDegrades(t *testing.T) {
	idx := &mockIndex{}
	idx.On("SearchVector", mock.Anything, "Apollo", mock.Anything, DefaultTopK, mock.Anything).
		Return([]storage.VectorResult{{ChunkID: 5}}, nil)
	idx.On("SearchText", mock.Anything, "Apollo", "capacity", DefaultTopK, mock.Anything).
		Return(nil, errors.New("fts5: syntax error"))
	idx.On("GetChunks", mock.Anything, []int64{5}).Return(chunkMap(5), nil)

	s := New(idx, newLocalEmbedder(t), Options{}, nil, nil)
	results, err := s.Search(context.Background(), Request{ProjectID: "Apollo", Query: "capacity"})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.MatchVector, results[0].MatchType)
}

func TestSearch_BothLegsFail(t *testing.T) {
	idx := &mockIndex{}
	idx.On("SearchText", mock.Anything, "Apollo", "capacity", DefaultTopK, mock.Anything).
		Return(nil, errors.New("database is locked"))

	s := New(idx, failingEmbedder{}, Options{}, nil, nil)
	_, err := s.Search(context.Background(), Request{ProjectID: "Apollo", Query: "capacity"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSearchFailed)
	assert.Contains(t, err.Error(), "database is locked")
}

func TestSearch_PunctuationQuerySkipsTextLeg(t *testing.T) {
	idx := &mockIndex{}
	idx.On("SearchVector", mock.Anything, "Apollo", mock.Anything, DefaultTopK, mock.Anything).
		Return([]storage.VectorResult{{ChunkID: 1}}, nil)
	idx.On("GetChunks", mock.Anything, []int64{1}).Return(chunkMap(1), nil)

	s := New(idx, newLocalEmbedder(t), Options{}, nil, nil)
	results, err := s.Search(context.Background(), Request{ProjectID: "Apollo", Query: "?!"})

	require.NoError(t, err)
	require.Len(t, results, 1)
	idx.AssertNotCalled(t, "SearchText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSearch_SkipsChunksDeletedBeforeHydration(t *testing.T) {
	idx := &mockIndex{}
	idx.On("SearchVector", mock.Anything, "Apollo", mock.Anything, DefaultTopK, mock.Anything).
		Return([]storage.VectorResult{{ChunkID: 1}, {ChunkID: 2}}, nil)
	idx.On("SearchText", mock.Anything, "Apollo", "capacity", DefaultTopK, mock.Anything).
		Return([]storage.TextResult{}, nil)
	idx.On("GetChunks", mock.Anything, []int64{1, 2}).Return(chunkMap(2), nil)

	s := New(idx, newLocalEmbedder(t), Options{}, nil, nil)
	results, err := s.Search(context.Background(), Request{ProjectID: "Apollo", Query: "capacity"})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].ID)
}

func TestSearch_MinScoreAndMaxTopK(t *testing.T) {
	idx := &mockIndex{}
	idx.On("SearchVector", mock.Anything, "Apollo", mock.Anything, MaxTopK, mock.Anything).
		Return([]storage.VectorResult{{ChunkID: 1}, {ChunkID: 2}}, nil)
	idx.On("SearchText", mock.Anything, "Apollo", "capacity", MaxTopK, mock.Anything).
		Return([]storage.TextResult{{ChunkID: 1}}, nil)
	idx.On("GetChunks", mock.Anything, []int64{1}).Return(chunkMap(1), nil)

	s := New(idx, newLocalEmbedder(t), Options{}, nil, nil)
	results, err := s.Search(context.Background(), Request{ProjectID: "Apollo", Query: "capacity", TopK: 1000, MinScore: 0.012})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.MatchHybrid, results[0].MatchType)
}

func TestSearch_Cache(t *testing.T) {
	idx := &mockIndex{}
	idx.On("SearchVector", mock.Anything, "Apollo", mock.Anything, DefaultTopK, mock.Anything).
		Return([]storage.VectorResult{{ChunkID: 1}}, nil)
	idx.On("SearchText", mock.Anything, "Apollo", "capacity", DefaultTopK, mock.Anything).
		Return([]storage.TextResult{{ChunkID: 1}}, nil)
	idx.On("GetChunks", mock.Anything, []int64{1}).Return(chunkMap(1), nil)

	s := New(idx, newLocalEmbedder(t), Options{CacheTTL: time.Minute}, nil, nil)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	req := Request{ProjectID: "Apollo", Query: "capacity"}

	first, err := s.Search(ctx, req)
	require.NoError(t, err)

	// Mutating a returned result must not affect the cached copy
	first[0].Content = "changed"

	second, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "chunk content", second[0].Content)
	idx.AssertNumberOfCalls(t, "SearchText", 1)

	now = now.Add(2 * time.Minute)
	_, err = s.Search(ctx, req)
	require.NoError(t, err)
	idx.AssertNumberOfCalls(t, "SearchText", 2)

	s.InvalidateCache()
	_, err = s.Search(ctx, req)
	require.NoError(t, err)
	idx.AssertNumberOfCalls(t, "SearchText", 3)
}

func TestSearch_NoCacheByDefault(t *testing.T) {
	idx := &mockIndex{}
	idx.On("SearchVector", mock.Anything, "Apollo", mock.Anything, DefaultTopK, mock.Anything).Return([]storage.VectorResult{}, nil)
	idx.On("SearchText", mock.Anything, "Apollo", "capacity", DefaultTopK, mock.Anything).Return([]storage.TextResult{}, nil)

	s := New(idx, newLocalEmbedder(t), Options{}, nil, nil)
	for i := 0; i < 2; i++ {
		_, err := s.Search(context.Background(), Request{ProjectID: "Apollo", Query: "capacity"})
		require.NoError(t, err)
	}
	idx.AssertNumberOfCalls(t, "SearchText", 2)
}

func TestSearch_ContextCancelled(t *testing.T) {
	idx := &mockIndex{}
	idx.On("SearchVector", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, context.Canceled)
	idx.On("SearchText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(idx, newLocalEmbedder(t), Options{}, nil, nil)
	_, err := s.Search(ctx, Request{ProjectID: "Apollo", Query: "capacity"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRequestKey(t *testing.T) {
	base := Request{ProjectID: "Apollo", Query: "capacity", TopK: 10, Weights: DefaultWeights(),
		SourceTypes: []types.SourceType{types.SourceWiki, types.SourceDocument}}

	reordered := base
	reordered.SourceTypes = []types.SourceType{types.SourceDocument, types.SourceWiki}
	assert.Equal(t, requestKey(base), requestKey(reordered))

	other := base
	other.ProjectID = "Zeus"
	assert.NotEqual(t, requestKey(base), requestKey(other))

	tuned := base
	tuned.Weights.RRFK = 10
	assert.NotEqual(t, requestKey(base), requestKey(tuned))
}

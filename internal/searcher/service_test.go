package searcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/chunker"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/embedder"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/storage"
	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

// setupTestService creates a service over in-memory storage
func setupTestService(t *testing.T, emb embedder.Embedder) (*Service, *storage.SQLiteStorage) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewService(store, emb, ServiceOptions{}, nil, nil), store
}

func ingestFixtures(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()

	_, err := svc.IngestDocument(ctx, Document{
		ProjectID:  "Apollo",
		DocumentID: "doc-1",
		Title:      "Planning notes",
		Content:    "Sprint capacity planning for the exporter team.\n\nThe exporter team plans capacity every sprint.",
	})
	require.NoError(t, err)

	_, err = svc.IngestDocument(ctx, Document{
		ProjectID:  "Apollo",
		DocumentID: "wiki-7",
		SourceType: types.SourceWiki,
		Content:    "# Deployment runbook\nRollback steps for the deployment pipeline.",
	})
	require.NoError(t, err)

	_, err = svc.IngestDocument(ctx, Document{
		ProjectID:  "Zeus",
		DocumentID: "doc-1",
		Content:    "Capacity planning in a different project.",
	})
	require.NoError(t, err)
}

func TestService_HybridSearchEndToEnd(t *testing.T) {
	svc, _ := setupTestService(t, newLocalEmbedder(t))
	ingestFixtures(t, svc)

	results, err := svc.Search(context.Background(), Request{ProjectID: "Apollo", Query: "capacity planning", TopK: 5})

	require.NoError(t, err)
	require.Len(t, results, 2, "only chunks of the requested project")
	assert.Equal(t, types.SourceDocument, results[0].SourceType)
	assert.Equal(t, types.MatchHybrid, results[0].MatchType)
	assert.Contains(t, results[0].Content, "capacity planning")
	assert.JSONEq(t, `{"title":"Planning notes"}`, string(results[0].Metadata))

	assert.Equal(t, types.SourceWiki, results[1].SourceType)
	assert.Equal(t, types.MatchVector, results[1].MatchType)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestService_SearchSourceTypeAllowlist(t *testing.T) {
	svc, _ := setupTestService(t, newLocalEmbedder(t))
	ingestFixtures(t, svc)

	results, err := svc.Search(context.Background(), Request{
		ProjectID:   "Apollo",
		Query:       "rollback deployment",
		SourceTypes: []types.SourceType{types.SourceWiki},
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.SourceWiki, results[0].SourceType)
	assert.Equal(t, types.MatchHybrid, results[0].MatchType)
	assert.JSONEq(t, `{"section":"Deployment runbook"}`, string(results[0].Metadata))
}

func TestService_IngestReplacesPreviousChunks(t *testing.T) {
	svc, store := setupTestService(t, newLocalEmbedder(t))
	svc.chunking = chunker.Options{MaxTokens: 10}
	ctx := context.Background()

	first, err := svc.IngestDocument(ctx, Document{
		ProjectID:  "Apollo",
		DocumentID: "doc-1",
		Content:    "alpha bravo charlie delta\n\necho foxtrot golf hotel\n\nindia juliet kilo lima",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Chunks)
	assert.True(t, first.Embedded)
	assert.Greater(t, first.Tokens, 0)

	second, err := svc.IngestDocument(ctx, Document{ProjectID: "Apollo", DocumentID: "doc-1", Content: "mike november"})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Chunks)

	stats, err := store.ChunkStats(ctx, "Apollo")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalChunks)
}

func TestService_IngestWithoutEmbeddings(t *testing.T) {
	svc, _ := setupTestService(t, failingEmbedder{})
	ctx := context.Background()

	result, err := svc.IngestDocument(ctx, Document{ProjectID: "Apollo", DocumentID: "doc-1", Content: "Exporter capacity review"})
	require.NoError(t, err)
	assert.False(t, result.Embedded)
	assert.Equal(t, 1, result.Chunks)

	// The vector leg fails but full-text still finds the chunk
	results, err := svc.Search(ctx, Request{ProjectID: "Apollo", Query: "exporter"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.MatchFullText, results[0].MatchType)
}

func TestService_IngestValidation(t *testing.T) {
	svc, _ := setupTestService(t, newLocalEmbedder(t))
	ctx := context.Background()

	tests := []struct {
		name string
		doc  Document
		want error
	}{
		{"missing project", Document{DocumentID: "d", Content: "x"}, ErrMissingProject},
		{"missing document id", Document{ProjectID: "Apollo", Content: "x"}, ErrInvalidDocument},
		{"period source type", Document{ProjectID: "Apollo", DocumentID: "d", SourceType: types.SourceWorkItem, Content: "x"}, ErrInvalidDocument},
		{"sprint source type", Document{ProjectID: "Apollo", DocumentID: "d", SourceType: types.SourceSprint, Content: "x"}, ErrInvalidDocument},
		{"unknown source type", Document{ProjectID: "Apollo", DocumentID: "d", SourceType: "email", Content: "x"}, types.ErrInvalidSourceType},
		{"empty content", Document{ProjectID: "Apollo", DocumentID: "d", Content: " \n "}, ErrInvalidDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.IngestDocument(ctx, tt.doc)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestService_DeleteDocument(t *testing.T) {
	svc, store := setupTestService(t, newLocalEmbedder(t))
	ingestFixtures(t, svc)
	ctx := context.Background()

	n, err := svc.DeleteDocument(ctx, "Apollo", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.DeleteDocument(ctx, "Apollo", "doc-1")
	require.NoError(t, err)
	assert.Zero(t, n)

	// The same document id in another project is untouched
	stats, err := store.ChunkStats(ctx, "Zeus")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalChunks)

	_, err = svc.DeleteDocument(ctx, "", "doc-1")
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestService_Stats(t *testing.T) {
	svc, _ := setupTestService(t, newLocalEmbedder(t))
	ingestFixtures(t, svc)

	stats, err := svc.Stats(context.Background(), "Apollo")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalChunks)
	assert.Equal(t, 1, stats.BySourceType[types.SourceDocument].Chunks)
	assert.Equal(t, 1, stats.BySourceType[types.SourceWiki].Chunks)
	assert.Greater(t, stats.AverageTokens, 0.0)

	_, err = svc.Stats(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingProject)
}

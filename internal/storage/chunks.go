package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

// Chunk operations

const chunkColumns = `
	id, project_id, source_type, source_id, content, content_hash,
	token_count, chunk_index, metadata, embedding, created_at
`

// insertChunksWithQuerier is the internal implementation that uses a querier.
// Chunks are keyed by (project, source type, source id, chunk index); inserting
// an existing key replaces it.
func (s *SQLiteStorage) insertChunksWithQuerier(ctx context.Context, q querier, projectID string, sourceType types.SourceType, sourceID string, chunks []types.ChunkInput) ([]int64, error) {
	if !sourceType.Valid() {
		return nil, types.ErrInvalidSourceType
	}

	query := `
		INSERT INTO document_chunks (
			project_id, source_type, source_id, content, content_hash,
			token_count, chunk_index, metadata, embedding, dimension, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, source_type, source_id, chunk_index) DO UPDATE SET
			content = excluded.content,
			content_hash = excluded.content_hash,
			token_count = excluded.token_count,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			dimension = excluded.dimension
		RETURNING id
	`
	now := time.Now().UTC()
	ids := make([]int64, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Content == "" {
			return ids, types.ErrEmptyContent
		}

		metadata := "{}"
		if len(chunk.Metadata) > 0 {
			data, err := json.Marshal(chunk.Metadata)
			if err != nil {
				return ids, fmt.Errorf("failed to encode chunk metadata: %w", err)
			}
			metadata = string(data)
		}

		var embedding interface{}
		if len(chunk.Embedding) > 0 {
			embedding = pgvector.NewVector(chunk.Embedding).String()
		}

		tokens := chunk.TokenCount
		if tokens <= 0 {
			tokens = types.EstimateTokens(chunk.Content)
		}
		hash := sha256.Sum256([]byte(chunk.Content))

		var id int64
		err := q.QueryRowContext(ctx, query,
			projectID, string(sourceType), sourceID, chunk.Content, hash[:],
			tokens, chunk.ChunkIndex, metadata, embedding, len(chunk.Embedding), now,
		).Scan(&id)
		if err != nil {
			return ids, fmt.Errorf("failed to insert chunk %d of %s/%s: %w", chunk.ChunkIndex, sourceType, sourceID, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *SQLiteStorage) InsertChunks(ctx context.Context, projectID string, sourceType types.SourceType, sourceID string, chunks []types.ChunkInput) ([]int64, error) {
	return s.insertChunksWithQuerier(ctx, s.querier(), projectID, sourceType, sourceID, chunks)
}

// deleteChunksBySourceWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteChunksBySourceWithQuerier(ctx context.Context, q querier, projectID string, sourceType types.SourceType, sourceID string) (int64, error) {
	result, err := q.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE project_id = ? AND source_type = ? AND source_id = ?`,
		projectID, string(sourceType), sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks of %s/%s: %w", sourceType, sourceID, err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStorage) DeleteChunksBySource(ctx context.Context, projectID string, sourceType types.SourceType, sourceID string) (int64, error) {
	return s.deleteChunksBySourceWithQuerier(ctx, s.querier(), projectID, sourceType, sourceID)
}

// deleteChunksByDocumentWithQuerier removes every chunk of a document or wiki page
func (s *SQLiteStorage) deleteChunksByDocumentWithQuerier(ctx context.Context, q querier, projectID, documentID string) (int64, error) {
	result, err := q.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE project_id = ? AND source_id = ? AND source_type IN (?, ?)`,
		projectID, documentID, string(types.SourceDocument), string(types.SourceWiki))
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks of document %s: %w", documentID, err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStorage) DeleteChunksByDocument(ctx context.Context, projectID, documentID string) (int64, error) {
	return s.deleteChunksByDocumentWithQuerier(ctx, s.querier(), projectID, documentID)
}

func scanChunk(scan func(dest ...interface{}) error) (*types.DocumentChunk, error) {
	var chunk types.DocumentChunk
	var sourceType, metadata string
	var hash []byte
	var embedding sql.NullString
	var createdAt sql.NullTime

	err := scan(
		&chunk.ID, &chunk.ProjectID, &sourceType, &chunk.SourceID, &chunk.Content, &hash,
		&chunk.TokenCount, &chunk.ChunkIndex, &metadata, &embedding, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	chunk.SourceType = types.SourceType(sourceType)
	copy(chunk.ContentHash[:], hash)
	chunk.Metadata = json.RawMessage(metadata)
	if embedding.Valid && embedding.String != "" {
		var v pgvector.Vector
		if err := v.Scan(embedding.String); err != nil {
			return nil, fmt.Errorf("failed to decode embedding of chunk %d: %w", chunk.ID, err)
		}
		chunk.Embedding = v.Slice()
	}
	if createdAt.Valid {
		chunk.CreatedAt = createdAt.Time.UTC()
	}
	return &chunk, nil
}

// GetChunk returns one chunk with its embedding
func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID int64) (*types.DocumentChunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM document_chunks WHERE id = ?`, chunkID)
	chunk, err := scanChunk(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

// GetChunks loads several chunks in one query; missing ids are absent from the map
func (s *SQLiteStorage) GetChunks(ctx context.Context, chunkIDs []int64) (map[int64]*types.DocumentChunk, error) {
	out := make(map[int64]*types.DocumentChunk, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(chunkIDs))
	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `SELECT ` + chunkColumns + ` FROM document_chunks WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		chunk, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, err
		}
		out[chunk.ID] = chunk
	}
	return out, rows.Err()
}

// ChunkStats aggregates chunk counts and token usage per source type
func (s *SQLiteStorage) ChunkStats(ctx context.Context, projectID string) (*types.ChunkStats, error) {
	query := `
		SELECT source_type, COUNT(*), COALESCE(SUM(token_count), 0)
		FROM document_chunks
		WHERE project_id = ?
		GROUP BY source_type
		ORDER BY source_type
	`
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := &types.ChunkStats{
		ProjectID:    projectID,
		BySourceType: make(map[types.SourceType]types.SourceTypeStats),
	}
	for rows.Next() {
		var sourceType string
		var count, tokens int
		if err := rows.Scan(&sourceType, &count, &tokens); err != nil {
			return nil, err
		}
		stats.BySourceType[types.SourceType(sourceType)] = types.SourceTypeStats{
			Chunks:        count,
			TotalTokens:   tokens,
			AverageTokens: average(tokens, count),
		}
		stats.TotalChunks += count
		stats.TotalTokens += tokens
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats.AverageTokens = average(stats.TotalTokens, stats.TotalChunks)
	return stats, nil
}

func average(total, count int) float64 {
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

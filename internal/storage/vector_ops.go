package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/pgvector/pgvector-go"
)

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, db *sql.DB, projectID string, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if limit <= 0 {
		return []VectorResult{}, nil
	}
	// Use optimized SQL-based search when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, projectID, queryVector, limit, filters)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, db, projectID, queryVector, limit, filters)
}

// searchVectorOptimized lets sqlite-vec compute the distance. The stored text
// form of pgvector.Vector is a JSON array, which vec_distance_cosine accepts.
func searchVectorOptimized(ctx context.Context, db *sql.DB, projectID string, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	query := `
		SELECT
			c.id as chunk_id,
			vec_distance_cosine(c.embedding, ?) as distance
		FROM document_chunks c
		WHERE c.project_id = ?
		AND c.embedding IS NOT NULL
		AND c.dimension = ?
	`
	args := []interface{}{pgvector.NewVector(queryVector).String(), projectID, len(queryVector)}
	query, args = applyChunkFilters(query, args, filters)

	// Distance ascending, id breaks ties
	query += " ORDER BY distance ASC, c.id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var chunkID int64
		var distance float64
		if err := rows.Scan(&chunkID, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, VectorResult{ChunkID: chunkID, SimilarityScore: 1.0 - distance})
	}
	return results, rows.Err()
}

// searchVectorFallback performs vector search using Go-based cosine similarity computation
func searchVectorFallback(ctx context.Context, db *sql.DB, projectID string, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	query := `
		SELECT c.id as chunk_id, c.embedding
		FROM document_chunks c
		WHERE c.project_id = ?
		AND c.embedding IS NOT NULL
		AND c.dimension = ?
	`
	args := []interface{}{projectID, len(queryVector)}
	query, args = applyChunkFilters(query, args, filters)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	return buildVectorResults(candidates, limit), nil
}

// searchText performs BM25 full-text search using FTS5
func searchText(ctx context.Context, db *sql.DB, projectID string, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if limit <= 0 {
		return []TextResult{}, nil
	}

	sqlQuery := `
		SELECT
			c.id as chunk_id,
			bm25(document_chunks_fts) as score
		FROM document_chunks_fts
		INNER JOIN document_chunks c ON c.id = document_chunks_fts.rowid
		WHERE document_chunks_fts MATCH ?
		AND c.project_id = ?
	`
	args := []interface{}{sanitized, projectID}
	sqlQuery, args = applyChunkFilters(sqlQuery, args, filters)

	// BM25 is negative, lower is better
	sqlQuery += " ORDER BY score ASC, c.id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTextResults(rows)
}

// Helper functions

// applyChunkFilters adds the source type allowlist and source id filters
func applyChunkFilters(query string, args []interface{}, filters *SearchFilters) (string, []interface{}) {
	if filters == nil {
		return query, args
	}

	if len(filters.SourceTypes) > 0 {
		placeholders := make([]string, len(filters.SourceTypes))
		for i, st := range filters.SourceTypes {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += " AND c.source_type IN (" + strings.Join(placeholders, ",") + ")"
	}

	if len(filters.SourceIDs) > 0 {
		placeholders := make([]string, len(filters.SourceIDs))
		for i, id := range filters.SourceIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += " AND c.source_id IN (" + strings.Join(placeholders, ",") + ")"
	}

	return query, args
}

// computeSimilarityScores processes rows and computes cosine similarity
func computeSimilarityScores(rows *sql.Rows, queryVector []float32) ([]candidate, error) {
	candidates := make([]candidate, 0, 256)

	for rows.Next() {
		var chunkID int64
		var stored pgvector.Vector
		if err := rows.Scan(&chunkID, &stored); err != nil {
			return nil, err
		}

		vector := stored.Slice()
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		candidates = append(candidates, candidate{chunkID: chunkID, score: cosineSimilarity(queryVector, vector)})
	}

	return candidates, rows.Err()
}

// buildVectorResults creates VectorResult slice from candidates
func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{
			ChunkID:         candidates[i].chunkID,
			SimilarityScore: candidates[i].score,
		}
	}
	return results
}

// collectTextResults processes text search results and normalizes scores
func collectTextResults(rows *sql.Rows) ([]TextResult, error) {
	results := make([]TextResult, 0)

	for rows.Next() {
		var result TextResult
		if err := rows.Scan(&result.ChunkID, &result.BM25Score); err != nil {
			return nil, err
		}

		// BM25 scores are typically in range [-50, 0]
		result.BM25Score = 1.0 / (1.0 + math.Abs(result.BM25Score)/50.0)
		results = append(results, result)
	}

	return results, rows.Err()
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate represents a chunk with its similarity score
type candidate struct {
	chunkID int64
	score   float64
}

// sortCandidates orders by score descending, then chunk id, matching the SQL path
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chunkID < candidates[j].chunkID
	})
}

// sanitizeFTSQuery turns free text into an FTS5 expression. Every word is
// quoted so operators and punctuation in the input are matched literally, and
// words are OR-ed so bm25 rewards chunks matching more of them.
func sanitizeFTSQuery(query string) string {
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	if len(words) == 0 {
		return ""
	}

	seen := make(map[string]struct{}, len(words))
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		key := strings.ToLower(w)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		quoted = append(quoted, `"`+w+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// SanitizeFTSQuery is an exported helper for testing
func SanitizeFTSQuery(query string) string {
	return sanitizeFTSQuery(query)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}

// Package searcher implements hybrid search over content chunks, combining
// vector similarity and full-text relevance with weighted Reciprocal Rank
// Fusion.
//
// # Basic Usage
//
//	svc := searcher.NewService(store, emb, searcher.ServiceOptions{}, logger, m)
//
//	results, err := svc.Search(ctx, searcher.Request{
//	    ProjectID: "Apollo",
//	    Query:     "exporter capacity",
//	    TopK:      10,
//	})
//
//	for _, r := range results {
//	    fmt.Printf("[%s] %.4f %s\n", r.MatchType, r.Score, r.Content)
//	}
//
// # How a Search Runs
//
//  1. The query is sanitized (NUL bytes, control characters, whitespace runs).
//  2. Two legs run concurrently: the query embedding against stored vectors
//     (cosine similarity, best first) and an FTS5 query ranked by bm25. Each
//     leg returns at most TopK ids and honours the project and source-type
//     filters.
//  3. The ranked id lists are fused with reciprocal rank fusion.
//  4. Results under MinScore are dropped, the rest sorted by score and cut to
//     TopK. Ties keep first-seen order, vector list first.
//  5. Content, metadata and source type are loaded for the survivors.
//
// Fusion uses 0-based ranks:
//
//	score = vectorWeight/(rrfK + vectorRank + 1) + fullTextWeight/(rrfK + fullTextRank + 1)
//
// A chunk missing from one list gets only the other term. MatchType is
// hybrid, vector or fulltext accordingly.
//
// If one leg fails (embedding provider down, malformed full-text query) the
// other leg's ranking is returned alone. Only when both fail does Search
// return ErrSearchFailed.
//
// # Tuning
//
// Weights default to 0.7 vector / 0.3 full-text with rrfK = 60. A larger
// rrfK flattens the score gap between high and low ranks:
//
//	svc.Search(ctx, searcher.Request{
//	    ProjectID: "Apollo",
//	    Query:     "rollback",
//	    Weights:   searcher.Weights{VectorWeight: 0.5, FullTextWeight: 0.5, RRFK: 20},
//	})
//
// # Caching
//
// With Options.CacheTTL set, responses are cached in an LRU keyed by a hash of
// the normalized request. Ingesting or deleting a document purges the cache.
//
// # Ingestion
//
// Service.IngestDocument chunks a document or wiki page, embeds the chunks in
// batches and replaces whatever was stored for that document id in a single
// transaction. DeleteDocument and Stats cover the rest of the chunk lifecycle.
package searcher

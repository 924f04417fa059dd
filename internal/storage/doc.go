// Package storage provides SQLite-based persistence for synced Azure DevOps
// data and retrievable content chunks.
//
// The storage layer manages:
//   - Projects and their incremental sync watermark
//   - Work items, with live Azure fields and derived effort fields
//   - Work item revisions as per-revision change sets
//   - Sprints with planned capacity
//   - Document chunks with embeddings and a full-text index
//   - Monthly preparation runs
//
// # Database Schema
//
// Tables:
//   - projects: Azure project name, organization, team, last sync time
//   - work_items: live fields plus initial/last/done remaining work and closed date
//   - work_item_revisions: one row per (work_item_id, rev), changes stored as JSON
//   - sprints: team iterations with capacity hours
//   - document_chunks: chunk text, metadata JSON and embedding in [x,y,...] text form
//   - document_chunks_fts: FTS5 index kept in sync by triggers
//   - preparation_runs: durable status of monthly preparation
//
// Migrations are versioned with semantic versions and applied on open.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("azurebridge.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.UpsertWorkItem(ctx, item); err != nil {
//	    return err
//	}
//
// Derived effort fields are only written through UpdateEffortFields, so a
// live-field upsert never clears them:
//
//	merged := effort.Apply(storage.EffortFieldsOf(stored), result)
//	err = db.UpdateEffortFields(ctx, item.ID, merged)
//
// # Transactions
//
// Writes can be grouped in a transaction:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	if _, err := tx.DeleteChunksBySource(ctx, project, types.SourceWorkItem, "2024-03"); err != nil {
//	    return err
//	}
//	if _, err := tx.InsertChunks(ctx, project, types.SourceWorkItem, "2024-03", chunks); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// # Search
//
// SearchVector ranks chunks by cosine similarity. Builds with the sqlite_vec
// tag compute it in SQL with vec_distance_cosine; the default pure Go build
// scans candidate embeddings and ranks them in Go. SearchText ranks by FTS5
// bm25, normalized so higher is better. Both are scoped to one project and
// accept a source type allowlist.
//
// # Build Modes
//
//	go build ./...                                   # modernc.org/sqlite, pure Go
//	CGO_ENABLED=1 go build -tags "sqlite_vec,fts5" ./...  # mattn/go-sqlite3 + sqlite-vec
package storage

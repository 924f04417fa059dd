// Package syncer mirrors Azure DevOps work items, revision history, sprints
// and team capacity into storage.
//
// There are four entrypoints:
//
//	s.FullSync(ctx, "Apollo")        // every work item, plus sprints
//	s.IncrementalSync(ctx, "Apollo") // items changed since the last completed sync
//	s.SyncItem(ctx, "Apollo", 42)    // one item
//	s.BackfillEffort(ctx, "Apollo")  // recompute effort from stored revisions only
//
// Whatever the entrypoint, effort fields come out of the same path: the stored
// row and its stored revisions are reconciled, ratcheted onto the current
// values and written only if something moved. The same history therefore
// always produces the same fields.
//
// A failure on one work item is recorded in Result.Errors and the run goes
// on. A failed batch request, WIQL query or storage call fails the run; the
// whole run is retried when the failure is transient. The incremental
// watermark is the start time of the last run that completed.
//
// Only one run per project executes at a time; a second one gets
// ErrSyncInProgress.
package syncer

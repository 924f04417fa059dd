// Package monthly prepares the period-scoped retrieval chunks used by monthly
// status reports.
//
// Prepare validates the YYYY-MM period, records a durable run row and
// collects in a detached goroutine while the caller polls Status:
//
//	st, err := preparer.Prepare(ctx, "Apollo", "2026-03")
//	// st.Status == "collecting"
//	...
//	st, err = preparer.Status(ctx, "Apollo", "2026-03")
//	// collecting -> ready | failed, with progress 0-100
//
// A collection loads the work items active in the month (changed or closed
// in it, or planned in a sprint overlapping it), renders one snapshot chunk
// per work item and per sprint, embeds them and swaps them in for the
// previous chunks of that period in one transaction.
//
// Status reads the StatusStore first and falls back to the durable row, so
// polling survives a restart. A second Prepare for a period that is still
// collecting and reported progress within StaleAfter returns the running
// status instead of starting another run; an older one is considered
// abandoned and restarted.
package monthly

// Package types provides shared type definitions for AzureBridge.
//
// The types here cross package boundaries: work items and revisions flow from
// the Azure DevOps client through the sync service into storage, and chunks
// and search results flow between storage, the searcher and the HTTP and MCP
// surfaces.
//
// # Work items
//
// WorkItem carries both the live Azure values (RemainingWork, CompletedWork,
// State) and the derived history fields:
//
//	item.InitialRemainingWork // first positive remaining work ever observed
//	item.LastRemainingWork    // most recent positive remaining work
//	item.DoneRemainingWork    // remaining work when the item first went done
//
// The derived fields are ratchets: once positive they are never reset to zero
// or nil by a later sync. Initial and done remaining work are also frozen once
// positive.
//
// # Chunks and search results
//
// DocumentChunk is the unit of retrieval. Chunks of SourceWorkItem and
// SourceSprint are period scoped (SourceID holds the YYYY-MM key) and are
// regenerated wholesale by each monthly preparation.
//
// SearchResult is produced by hybrid search only and is never persisted.
//
// # Status objects
//
// Long-running operations report failures as PreparationStatus values with
// Status set to StatusFailed and one StatusError per failure.
package types

package storage

import (
	"context"
	"time"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/effort"
	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

// Storage defines the interface for persisting synced Azure DevOps data and
// retrievable chunks
type Storage interface {
	Writer

	// Project operations
	GetProject(ctx context.Context, id string) (*types.Project, error)
	GetLastSync(ctx context.Context, projectID string) (*time.Time, error)
	SetLastSync(ctx context.Context, projectID string, at time.Time) error

	// Work item operations
	GetWorkItem(ctx context.Context, id int) (*types.WorkItem, error)
	ListWorkItems(ctx context.Context, projectID string, filter *WorkItemFilter) ([]types.WorkItem, error)
	ListWorkItemIDs(ctx context.Context, projectID string) ([]int, error)
	ListRevisions(ctx context.Context, workItemID int) ([]types.WorkItemRevision, error)

	// Sprint operations
	ListSprints(ctx context.Context, projectID string) ([]types.Sprint, error)

	// Chunk operations
	GetChunk(ctx context.Context, chunkID int64) (*types.DocumentChunk, error)
	GetChunks(ctx context.Context, chunkIDs []int64) (map[int64]*types.DocumentChunk, error)
	ChunkStats(ctx context.Context, projectID string) (*types.ChunkStats, error)

	// Search operations
	SearchVector(ctx context.Context, projectID string, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)
	SearchText(ctx context.Context, projectID string, query string, limit int, filters *SearchFilters) ([]TextResult, error)

	// Preparation run operations
	CreatePreparationRun(ctx context.Context, run *types.PreparationStatus) error
	UpdatePreparationRun(ctx context.Context, run *types.PreparationStatus) error
	GetLatestPreparationRun(ctx context.Context, projectID, period string) (*types.PreparationStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Writer holds the mutating operations available both on Storage and inside a Tx
type Writer interface {
	UpsertProject(ctx context.Context, project *types.Project) error

	// UpsertWorkItem writes the live fields only; derived effort fields are
	// never touched here
	UpsertWorkItem(ctx context.Context, item *types.WorkItem) error
	// UpdateEffortFields writes the non-nil derived fields; nil leaves the column as is
	UpdateEffortFields(ctx context.Context, workItemID int, fields effort.Fields) error
	UpsertRevisions(ctx context.Context, revisions []types.WorkItemRevision) (int, error)

	UpsertSprint(ctx context.Context, sprint *types.Sprint) error

	InsertChunks(ctx context.Context, projectID string, sourceType types.SourceType, sourceID string, chunks []types.ChunkInput) ([]int64, error)
	DeleteChunksBySource(ctx context.Context, projectID string, sourceType types.SourceType, sourceID string) (int64, error)
	DeleteChunksByDocument(ctx context.Context, projectID, documentID string) (int64, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Writer
}

// WorkItemFilter narrows ListWorkItems; zero values match everything
type WorkItemFilter struct {
	IDs                 []int
	IterationPathPrefix string
	ChangedSince        *time.Time
}

// SearchFilters narrows vector and full-text searches
type SearchFilters struct {
	SourceTypes []types.SourceType // Allowlist; empty means all
	SourceIDs   []string           // Restrict to documents or periods
}

// VectorResult represents a vector similarity search result
type VectorResult struct {
	ChunkID         int64
	SimilarityScore float64 // 1 - cosine distance
}

// TextResult represents a full-text search result
type TextResult struct {
	ChunkID   int64
	BM25Score float64 // Normalized, higher is better
}

// EffortFieldsOf extracts the stored effort fields of a work item
func EffortFieldsOf(item *types.WorkItem) effort.Fields {
	if item == nil {
		return effort.Fields{}
	}
	return effort.Fields{
		InitialRemainingWork: item.InitialRemainingWork,
		LastRemainingWork:    item.LastRemainingWork,
		DoneRemainingWork:    item.DoneRemainingWork,
		ClosedDate:           item.ClosedDate,
	}
}

package types

import (
	"crypto/sha256"
	"encoding/json"
	"time"
)

// SourceType identifies where a chunk's text came from
type SourceType string

const (
	SourceDocument SourceType = "document"
	SourceWiki     SourceType = "wiki"
	SourceWorkItem SourceType = "workitem"
	SourceSprint   SourceType = "sprint"
)

// AllSourceTypes lists every known source type in display order
var AllSourceTypes = []SourceType{SourceDocument, SourceWiki, SourceWorkItem, SourceSprint}

// Valid reports whether s is a known source type
func (s SourceType) Valid() bool {
	switch s {
	case SourceDocument, SourceWiki, SourceWorkItem, SourceSprint:
		return true
	default:
		return false
	}
}

// PeriodScoped reports whether chunks of this type are regenerated per reporting period
func (s SourceType) PeriodScoped() bool {
	return s == SourceWorkItem || s == SourceSprint
}

// DocumentChunk is a bounded span of source text stored with its embedding
type DocumentChunk struct {
	// Identification
	ID         int64
	ProjectID  string
	SourceType SourceType
	SourceID   string // document id, wiki page id or period key

	// Content
	Content     string
	ContentHash [32]byte
	TokenCount  int
	ChunkIndex  int
	Metadata    json.RawMessage

	// Embedding is nil when the chunk was stored without a vector
	Embedding []float32

	CreatedAt time.Time
}

// ChunkInput is what callers hand to storage when inserting chunks
type ChunkInput struct {
	Content    string
	TokenCount int
	ChunkIndex int
	Metadata   map[string]any
	Embedding  []float32
}

// ComputeContentHash computes the SHA-256 hash of the chunk content
func (c *DocumentChunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.Content))
}

// EstimateTokens approximates the token count of text at four characters per token
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// ChunkStats aggregates chunk counts for one project
type ChunkStats struct {
	ProjectID     string                         `json:"projectId"`
	TotalChunks   int                            `json:"totalChunks"`
	TotalTokens   int                            `json:"totalTokens"`
	AverageTokens float64                        `json:"averageTokens"`
	BySourceType  map[SourceType]SourceTypeStats `json:"bySourceType"`
}

// SourceTypeStats is the per-source-type slice of ChunkStats
type SourceTypeStats struct {
	Chunks        int     `json:"chunks"`
	TotalTokens   int     `json:"totalTokens"`
	AverageTokens float64 `json:"averageTokens"`
}

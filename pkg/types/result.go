package types

import "encoding/json"

// MatchType records which search legs produced a result
type MatchType string

const (
	MatchHybrid   MatchType = "hybrid"
	MatchVector   MatchType = "vector"
	MatchFullText MatchType = "fulltext"
)

// SearchResult represents a single search result with relevance information
type SearchResult struct {
	ID         int64           `json:"id"`
	Content    string          `json:"content"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	SourceType SourceType      `json:"sourceType"`
	Score      float64         `json:"score"`
	MatchType  MatchType       `json:"matchType"`
}

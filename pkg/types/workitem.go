package types

import (
	"encoding/json"
	"time"
)

// WorkItem is the local copy of an Azure DevOps work item.
//
// RemainingWork and CompletedWork mirror the live Azure values. The three
// *RemainingWork pointers are derived from revision history and are nil until
// a sync or backfill has computed them.
type WorkItem struct {
	ID               int        `json:"id"`
	ProjectID        string     `json:"projectId"`
	Rev              int        `json:"rev"`
	Type             string     `json:"type"`
	Title            string     `json:"title"`
	State            string     `json:"state"`
	AssignedTo       string     `json:"assignedTo,omitempty"`
	IterationPath    string     `json:"iterationPath,omitempty"`
	AreaPath         string     `json:"areaPath,omitempty"`
	RemainingWork    float64    `json:"remainingWork"`
	CompletedWork    float64    `json:"completedWork"`
	OriginalEstimate float64    `json:"originalEstimate"`
	CreatedDate      time.Time  `json:"createdDate"`
	ChangedDate      time.Time  `json:"changedDate"`
	ClosedDate       *time.Time `json:"closedDate,omitempty"`

	InitialRemainingWork *float64 `json:"initialRemainingWork,omitempty"`
	LastRemainingWork    *float64 `json:"lastRemainingWork,omitempty"`
	DoneRemainingWork    *float64 `json:"doneRemainingWork,omitempty"`
}

// WorkItemRevision is the set of fields that changed at one revision of a work item
type WorkItemRevision struct {
	WorkItemID    int             `json:"workItemId"`
	Rev           int             `json:"rev"`
	ChangedFields []string        `json:"changedFields"`
	Changes       json.RawMessage `json:"changes"`
	RevisedDate   time.Time       `json:"revisedDate"`
	RevisedBy     string          `json:"revisedBy,omitempty"`
}

// Sprint is a team iteration with its planned capacity
type Sprint struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"projectId"`
	Name          string     `json:"name"`
	Path          string     `json:"path"`
	StartDate     *time.Time `json:"startDate,omitempty"`
	FinishDate    *time.Time `json:"finishDate,omitempty"`
	TimeFrame     string     `json:"timeFrame,omitempty"`
	CapacityHours float64    `json:"capacityHours"`
}

// Overlaps reports whether the sprint intersects the half-open range [from, to)
func (s *Sprint) Overlaps(from, to time.Time) bool {
	if s.StartDate == nil || s.FinishDate == nil {
		return false
	}
	return s.StartDate.Before(to) && !s.FinishDate.Before(from)
}

// Project is an Azure DevOps project mirrored locally
type Project struct {
	ID           string     `json:"id"`
	Organization string     `json:"organization"`
	Team         string     `json:"team,omitempty"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

package monthly

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

const (
	DefaultStatusTTL  = 2 * time.Hour
	DefaultStatusSize = 256
)

// StatusStore holds the latest preparation status per project and period for
// progress polling. It is best effort: the durable run row is the fallback.
type StatusStore interface {
	Get(projectID, period string) (*types.PreparationStatus, bool)
	Set(status *types.PreparationStatus)
	Delete(projectID, period string)
}

// MemoryStatusStore is a StatusStore on an expiring LRU
type MemoryStatusStore struct {
	lru *expirable.LRU[string, types.PreparationStatus]
}

// NewMemoryStatusStore creates a store that keeps at most size entries for ttl
func NewMemoryStatusStore(ttl time.Duration, size int) *MemoryStatusStore {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	if size <= 0 {
		size = DefaultStatusSize
	}
	return &MemoryStatusStore{lru: expirable.NewLRU[string, types.PreparationStatus](size, nil, ttl)}
}

func statusKey(projectID, period string) string {
	return projectID + "|" + period
}

// Get returns a copy of the cached status
func (m *MemoryStatusStore) Get(projectID, period string) (*types.PreparationStatus, bool) {
	st, ok := m.lru.Get(statusKey(projectID, period))
	if !ok {
		return nil, false
	}
	return cloneStatus(&st), true
}

// Set stores a copy of status
func (m *MemoryStatusStore) Set(status *types.PreparationStatus) {
	if status == nil {
		return
	}
	m.lru.Add(statusKey(status.ProjectID, status.Period), *cloneStatus(status))
}

func (m *MemoryStatusStore) Delete(projectID, period string) {
	m.lru.Remove(statusKey(projectID, period))
}

// Len returns the number of live entries
func (m *MemoryStatusStore) Len() int {
	return m.lru.Len()
}

func cloneStatus(st *types.PreparationStatus) *types.PreparationStatus {
	out := *st
	out.Errors = make([]types.StatusError, len(st.Errors))
	copy(out.Errors, st.Errors)
	if st.FinishedAt != nil {
		t := *st.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}

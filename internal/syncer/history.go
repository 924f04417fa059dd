package syncer

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// historySize bounds the remembered (project, mode) pairs
const historySize = 256

// RunStatus is the outcome of a finished run
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunRecord is the last finished run of one mode for one project.
// Result is nil when the run failed before producing one.
type RunRecord struct {
	Mode   Mode      `json:"mode"`
	Status RunStatus `json:"status"`
	Error  string    `json:"error,omitempty"`
	Result *Result   `json:"result,omitempty"`
}

var allModes = []Mode{ModeFull, ModeIncremental, ModeItem, ModeIteration, ModeBackfill}

// runHistory keeps the latest RunRecord per project and mode in memory
type runHistory struct {
	cache *lru.Cache[string, RunRecord]
}

func newRunHistory() runHistory {
	cache, _ := lru.New[string, RunRecord](historySize)
	return runHistory{cache: cache}
}

func historyKey(projectID string, mode Mode) string {
	return projectID + "\x00" + string(mode)
}

func (h runHistory) record(projectID string, mode Mode, res *Result, err error) {
	rec := RunRecord{Mode: mode, Status: RunSucceeded, Result: res}
	if err != nil {
		rec.Status = RunFailed
		rec.Error = err.Error()
	}
	h.cache.Add(historyKey(projectID, mode), rec)
}

// LastRuns returns the most recent finished run of every mode that has run
// for the project, in full, incremental, item, iteration, backfill order
func (s *Syncer) LastRuns(projectID string) []RunRecord {
	runs := make([]RunRecord, 0, len(allModes))
	for _, mode := range allModes {
		if rec, ok := s.history.cache.Get(historyKey(projectID, mode)); ok {
			runs = append(runs, rec)
		}
	}
	return runs
}

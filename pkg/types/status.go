package types

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a long-running operation
type RunStatus string

const (
	StatusCollecting RunStatus = "collecting"
	StatusReady      RunStatus = "ready"
	StatusFailed     RunStatus = "failed"
)

// StatusError is one user-visible failure entry
type StatusError struct {
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewStatusError builds a StatusError stamped with the current time
func NewStatusError(source string, err error) StatusError {
	return StatusError{
		Source:    source,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
}

// PreparationStatus is the pollable state of a monthly preparation run
type PreparationStatus struct {
	RunID      string        `json:"runId"`
	ProjectID  string        `json:"projectId"`
	Period     string        `json:"period"`
	Status     RunStatus     `json:"status"`
	Progress   int           `json:"progress"`
	Step       string        `json:"step,omitempty"`
	WorkItems  int           `json:"workItems"`
	Sprints    int           `json:"sprints"`
	Chunks     int           `json:"chunks"`
	Errors     []StatusError `json:"errors"`
	StartedAt  time.Time     `json:"startedAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
}

// Failed returns a failed status for a preparation that could not be started,
// carrying a single error
func Failed(projectID, period, source string, err error) *PreparationStatus {
	now := time.Now().UTC()
	return &PreparationStatus{
		ProjectID:  projectID,
		Period:     period,
		Status:     StatusFailed,
		Errors:     []StatusError{NewStatusError(source, err)},
		StartedAt:  now,
		UpdatedAt:  now,
		FinishedAt: &now,
	}
}

// Period is a monthly reporting cycle
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod parses a YYYY-MM period key
func ParsePeriod(key string) (Period, error) {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, key)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// Key returns the YYYY-MM form of the period
func (p Period) Key() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Range returns the half-open UTC range [start, end) covered by the period
func (p Period) Range() (time.Time, time.Time) {
	start := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

package effort

import (
	"sort"
	"strings"
	"time"
)

// doneStates is the closed set of states that count as finished
var doneStates = map[string]struct{}{
	"done":      {},
	"closed":    {},
	"completed": {},
}

// NormalizeState lower-cases and trims a work item state
func NormalizeState(state string) string {
	return strings.ToLower(strings.TrimSpace(state))
}

// IsDone reports whether state is one of done, closed or completed, ignoring case
func IsDone(state string) bool {
	_, ok := doneStates[NormalizeState(state)]
	return ok
}

// Revision is the effort-relevant view of one work item revision.
// Nil pointers mean the revision did not carry that field.
type Revision struct {
	Rev           int
	RemainingWork *float64
	State         *string
	ChangedDate   *time.Time
}

// Snapshot is the live state of a work item as last fetched from Azure
type Snapshot struct {
	RemainingWork float64
	CompletedWork float64
	State         string
	ClosedDate    *time.Time
}

// ScanState is the running state accumulated over the revision history.
//
// LastSeen is the raw running last value: it follows every revision that
// carries remaining work, zero included. LastNonZero only moves on positive
// values. The persisted LastRemainingWork field follows LastNonZero semantics
// through Apply, so the two are intentionally kept apart.
type ScanState struct {
	Initial       float64
	LastSeen      float64
	LastNonZero   float64
	Done          float64
	ClosedDate    *time.Time
	SawRemaining  bool
	DoneObserved  bool
	Transitions   int
	RevisionCount int
}

// Result holds the derived effort fields for one work item
type Result struct {
	InitialRemainingWork float64
	LastRemainingWork    float64
	DoneRemainingWork    *float64 // nil while the item has never been done
	ClosedDate           *time.Time
	Scan                 ScanState
}

// Scan runs the single linear pass over the revision history. Revisions are
// sorted by Rev first; the input slice is left untouched.
func Scan(revisions []Revision) ScanState {
	ordered := make([]Revision, len(revisions))
	copy(ordered, revisions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Rev < ordered[j].Rev
	})

	var st ScanState
	st.RevisionCount = len(ordered)

	var prevState string
	for _, rev := range ordered {
		state := prevState
		if rev.State != nil {
			state = NormalizeState(*rev.State)
		}

		var current float64
		if rev.RemainingWork != nil {
			current = *rev.RemainingWork
			st.SawRemaining = true

			if st.Initial == 0 && current > 0 {
				st.Initial = current
			}
			st.LastSeen = current
			if current > 0 {
				st.LastNonZero = current
			}
		}

		if IsDone(state) && state != prevState {
			st.Transitions++
			st.DoneObserved = true

			if st.ClosedDate == nil && st.Transitions == 1 && rev.ChangedDate != nil {
				d := *rev.ChangedDate
				st.ClosedDate = &d
			}

			if st.Done == 0 {
				switch {
				case current > 0:
					st.Done = current
				case st.LastNonZero > 0:
					st.Done = st.LastNonZero
				default:
					st.Done = st.LastSeen
				}
			}
		}

		prevState = state
	}

	return st
}

// Reconcile derives the effort fields from the revision history and the live
// item. It is pure: identical inputs always give identical results.
func Reconcile(current Snapshot, revisions []Revision) Result {
	st := Scan(revisions)

	res := Result{
		InitialRemainingWork: st.Initial,
		LastRemainingWork:    st.LastSeen,
		ClosedDate:           st.ClosedDate,
		Scan:                 st,
	}

	if res.InitialRemainingWork == 0 {
		res.InitialRemainingWork = current.RemainingWork + current.CompletedWork
	}

	if res.LastRemainingWork == 0 {
		if st.LastNonZero > 0 {
			res.LastRemainingWork = st.LastNonZero
		} else {
			res.LastRemainingWork = current.RemainingWork
		}
	}

	done := st.Done
	liveDone := IsDone(current.State)
	if done == 0 && liveDone {
		switch {
		case current.RemainingWork > 0:
			done = current.RemainingWork
		case st.LastNonZero > 0:
			done = st.LastNonZero
		default:
			done = current.CompletedWork
		}
	}
	if st.DoneObserved || liveDone {
		res.DoneRemainingWork = &done
	}

	if res.ClosedDate == nil && liveDone && current.ClosedDate != nil {
		d := *current.ClosedDate
		res.ClosedDate = &d
	}

	return res
}

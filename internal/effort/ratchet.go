package effort

import "time"

// Fields are the persisted derived fields of a work item
type Fields struct {
	InitialRemainingWork *float64
	LastRemainingWork    *float64
	DoneRemainingWork    *float64
	ClosedDate           *time.Time
}

// Apply merges a freshly reconciled result into the stored fields.
//
// LastRemainingWork advances to any positive incoming value. Initial and done
// remaining work latch: once stored positive they never change again. A zero
// or missing incoming value never replaces a stored positive value, so a
// payload that omits remaining work cannot shrink what an earlier sync
// recorded.
func Apply(existing Fields, incoming Result) Fields {
	initial := incoming.InitialRemainingWork
	last := incoming.LastRemainingWork

	out := Fields{
		InitialRemainingWork: latch(existing.InitialRemainingWork, &initial),
		LastRemainingWork:    ratchet(existing.LastRemainingWork, &last),
		DoneRemainingWork:    latch(existing.DoneRemainingWork, incoming.DoneRemainingWork),
		ClosedDate:           existing.ClosedDate,
	}
	if incoming.ClosedDate != nil {
		d := *incoming.ClosedDate
		out.ClosedDate = &d
	}
	return out
}

// latch keeps a stored positive value and otherwise defers to ratchet
func latch(existing, incoming *float64) *float64 {
	if existing != nil && *existing > 0 {
		v := *existing
		return &v
	}
	return ratchet(existing, incoming)
}

func ratchet(existing, incoming *float64) *float64 {
	switch {
	case incoming != nil && *incoming > 0:
		v := *incoming
		return &v
	case existing != nil && *existing > 0:
		v := *existing
		return &v
	case incoming != nil:
		v := *incoming
		return &v
	case existing != nil:
		v := *existing
		return &v
	default:
		return nil
	}
}

// Changed reports whether applying the fields would alter the stored row
func (f Fields) Changed(other Fields) bool {
	return !floatPtrEqual(f.InitialRemainingWork, other.InitialRemainingWork) ||
		!floatPtrEqual(f.LastRemainingWork, other.LastRemainingWork) ||
		!floatPtrEqual(f.DoneRemainingWork, other.DoneRemainingWork) ||
		!timePtrEqual(f.ClosedDate, other.ClosedDate)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

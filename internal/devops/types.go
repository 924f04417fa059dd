package devops

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/effort"
	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

// WorkItem is a work item as returned by the batch API
type WorkItem struct {
	ID     int
	Rev    int
	Fields Fields
}

// Revision is one full revision of a work item as returned by the revisions API
type Revision struct {
	ID     int
	Rev    int
	Fields Fields
}

// Iteration is a team iteration (sprint)
type Iteration struct {
	ID         string
	Name       string
	Path       string
	StartDate  *time.Time
	FinishDate *time.Time
	TimeFrame  string
}

// DateRange is an inclusive range of days
type DateRange struct {
	Start time.Time
	End   time.Time
}

// TeamMemberCapacity is one member's planned capacity in an iteration
type TeamMemberCapacity struct {
	Member         IdentityRef
	CapacityPerDay float64 // summed over activities
	DaysOff        []DateRange
}

func decodeWorkItem(v gjson.Result) WorkItem {
	return WorkItem{
		ID:     int(v.Get("id").Int()),
		Rev:    int(v.Get("rev").Int()),
		Fields: DecodeFields(v.Get("fields")),
	}
}

func decodeRevision(v gjson.Result) Revision {
	return Revision{
		ID:     int(v.Get("id").Int()),
		Rev:    int(v.Get("rev").Int()),
		Fields: DecodeFields(v.Get("fields")),
	}
}

func decodeIteration(v gjson.Result) Iteration {
	attrs := v.Get("attributes")
	return Iteration{
		ID:         v.Get("id").String(),
		Name:       v.Get("name").String(),
		Path:       v.Get("path").String(),
		StartDate:  decodeTime(attrs.Get("startDate")),
		FinishDate: decodeTime(attrs.Get("finishDate")),
		TimeFrame:  attrs.Get("timeFrame").String(),
	}
}

func decodeCapacity(v gjson.Result) TeamMemberCapacity {
	c := TeamMemberCapacity{}
	if m := decodeIdentity(v.Get("teamMember")); m != nil {
		c.Member = *m
	}
	for _, a := range v.Get("activities").Array() {
		c.CapacityPerDay += valueOr(decodeNumber(a.Get("capacityPerDay")))
	}
	for _, d := range v.Get("daysOff").Array() {
		start := decodeTime(d.Get("start"))
		end := decodeTime(d.Get("end"))
		if start != nil && end != nil {
			c.DaysOff = append(c.DaysOff, DateRange{Start: *start, End: *end})
		}
	}
	return c
}

// ToWorkItem converts the payload into the stored representation. Derived
// effort fields are left nil; they are computed from revision history.
func (w WorkItem) ToWorkItem(projectID string) types.WorkItem {
	f := w.Fields
	item := types.WorkItem{
		ID:               w.ID,
		ProjectID:        projectID,
		Rev:              w.Rev,
		Type:             f.WorkItemType,
		Title:            f.Title,
		IterationPath:    f.IterationPath,
		AreaPath:         f.AreaPath,
		AssignedTo:       f.AssignedTo.String(),
		RemainingWork:    valueOr(f.RemainingWork),
		CompletedWork:    valueOr(f.CompletedWork),
		OriginalEstimate: valueOr(f.OriginalEstimate),
		ClosedDate:       f.ClosedDate,
	}
	if f.State != nil {
		item.State = *f.State
	}
	if f.CreatedDate != nil {
		item.CreatedDate = *f.CreatedDate
	}
	if f.ChangedDate != nil {
		item.ChangedDate = *f.ChangedDate
	}
	return item
}

// SnapshotOf returns the effort view of a stored work item
func SnapshotOf(item types.WorkItem) effort.Snapshot {
	return effort.Snapshot{
		RemainingWork: item.RemainingWork,
		CompletedWork: item.CompletedWork,
		State:         item.State,
		ClosedDate:    item.ClosedDate,
	}
}

// ToSprint converts an iteration and its capacity into a sprint row
func (it Iteration) ToSprint(projectID string, capacity []TeamMemberCapacity) types.Sprint {
	return types.Sprint{
		ID:            it.ID,
		ProjectID:     projectID,
		Name:          it.Name,
		Path:          it.Path,
		StartDate:     it.StartDate,
		FinishDate:    it.FinishDate,
		TimeFrame:     it.TimeFrame,
		CapacityHours: CapacityHours(it, capacity),
	}
}

// CapacityHours sums capacity-per-day over each member's working days in the
// iteration. Weekends and the member's days off are excluded.
func CapacityHours(it Iteration, capacity []TeamMemberCapacity) float64 {
	if it.StartDate == nil || it.FinishDate == nil {
		return 0
	}

	var total float64
	for _, member := range capacity {
		if member.CapacityPerDay <= 0 {
			continue
		}
		days := 0
		for d := truncateDay(*it.StartDate); !d.After(truncateDay(*it.FinishDate)); d = d.AddDate(0, 0, 1) {
			if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
				continue
			}
			if isDayOff(d, member.DaysOff) {
				continue
			}
			days++
		}
		total += member.CapacityPerDay * float64(days)
	}
	return total
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func isDayOff(day time.Time, ranges []DateRange) bool {
	for _, r := range ranges {
		if !day.Before(truncateDay(r.Start)) && !day.After(truncateDay(r.End)) {
			return true
		}
	}
	return false
}

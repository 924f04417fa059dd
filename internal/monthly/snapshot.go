package monthly

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/effort"
	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

const dateLayout = "2006-01-02"

// Activity selects what a period covers: sprints overlapping the month and
// work items changed or closed in it, or planned in one of those sprints
func Activity(items []types.WorkItem, sprints []types.Sprint, p types.Period) ([]types.WorkItem, []types.Sprint) {
	from, to := p.Range()

	active := make([]types.Sprint, 0)
	paths := make([]string, 0)
	for i := range sprints {
		if sprints[i].Overlaps(from, to) {
			active = append(active, sprints[i])
			paths = append(paths, sprints[i].Path)
		}
	}

	inRange := func(t time.Time) bool {
		return !t.Before(from) && t.Before(to)
	}

	selected := make([]types.WorkItem, 0)
	for _, item := range items {
		switch {
		case inRange(item.ChangedDate):
		case item.ClosedDate != nil && inRange(*item.ClosedDate):
		case underAny(item.IterationPath, paths):
		default:
			continue
		}
		selected = append(selected, item)
	}
	return selected, active
}

func underAny(path string, roots []string) bool {
	if path == "" {
		return false
	}
	for _, root := range roots {
		if path == root || strings.HasPrefix(path, root+`\`) {
			return true
		}
	}
	return false
}

func hours(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "h"
}

func optionalHours(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return hours(*v)
}

// WorkItemSnapshot renders the state of a work item as of a period
func WorkItemSnapshot(item types.WorkItem, period string, index int) types.ChunkInput {
	var b strings.Builder
	fmt.Fprintf(&b, "Work item #%d (%s): %s\n", item.ID, item.Type, item.Title)
	fmt.Fprintf(&b, "State: %s\n", item.State)
	if item.AssignedTo != "" {
		fmt.Fprintf(&b, "Assigned to: %s\n", item.AssignedTo)
	}
	if item.IterationPath != "" {
		fmt.Fprintf(&b, "Iteration: %s\n", item.IterationPath)
	}
	fmt.Fprintf(&b, "Remaining work: %s (initial %s, last %s",
		hours(item.RemainingWork), optionalHours(item.InitialRemainingWork), optionalHours(item.LastRemainingWork))
	if item.DoneRemainingWork != nil {
		fmt.Fprintf(&b, ", at completion %s", hours(*item.DoneRemainingWork))
	}
	b.WriteString(")\n")
	fmt.Fprintf(&b, "Completed work: %s\n", hours(item.CompletedWork))
	if item.ClosedDate != nil {
		fmt.Fprintf(&b, "Closed: %s\n", item.ClosedDate.UTC().Format(dateLayout))
	}

	content := strings.TrimRight(b.String(), "\n")
	return types.ChunkInput{
		Content:    content,
		TokenCount: types.EstimateTokens(content),
		ChunkIndex: index,
		Metadata: map[string]any{
			"periodKey":     period,
			"workItemId":    item.ID,
			"workItemType":  item.Type,
			"state":         item.State,
			"iterationPath": item.IterationPath,
		},
	}
}

// SprintSnapshot renders a sprint with the totals of its work items
func SprintSnapshot(sprint types.Sprint, items []types.WorkItem, period string, index int) types.ChunkInput {
	var remaining, completed float64
	planned, done := 0, 0
	for _, item := range items {
		if !underAny(item.IterationPath, []string{sprint.Path}) {
			continue
		}
		planned++
		remaining += item.RemainingWork
		completed += item.CompletedWork
		if effort.IsDone(item.State) {
			done++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sprint %s (%s)\n", sprint.Name, sprint.Path)
	if sprint.StartDate != nil && sprint.FinishDate != nil {
		fmt.Fprintf(&b, "Dates: %s to %s\n", sprint.StartDate.UTC().Format(dateLayout), sprint.FinishDate.UTC().Format(dateLayout))
	}
	fmt.Fprintf(&b, "Team capacity: %s\n", hours(sprint.CapacityHours))
	fmt.Fprintf(&b, "Work items: %d planned, %d done\n", planned, done)
	fmt.Fprintf(&b, "Remaining work: %s, completed work: %s", hours(remaining), hours(completed))

	content := b.String()
	return types.ChunkInput{
		Content:    content,
		TokenCount: types.EstimateTokens(content),
		ChunkIndex: index,
		Metadata: map[string]any{
			"periodKey":     period,
			"sprintId":      sprint.ID,
			"sprintPath":    sprint.Path,
			"capacityHours": sprint.CapacityHours,
		},
	}
}

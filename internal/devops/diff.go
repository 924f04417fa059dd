package devops

import (
	"encoding/json"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/effort"
	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

// Diff turns full revision snapshots into per-revision change sets. A field
// is recorded when its value differs from the previous revision; a field that
// disappears is recorded as null. Revisions are processed in ascending Rev
// order regardless of input order.
func Diff(workItemID int, revisions []Revision) []types.WorkItemRevision {
	ordered := make([]Revision, len(revisions))
	copy(ordered, revisions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Rev < ordered[j].Rev
	})

	out := make([]types.WorkItemRevision, 0, len(ordered))
	prev := map[string]string{}

	for _, rev := range ordered {
		current := map[string]string{}
		changes := map[string]json.RawMessage{}

		gjson.ParseBytes(rev.Fields.Raw).ForEach(func(key, value gjson.Result) bool {
			current[key.String()] = value.Raw
			if old, ok := prev[key.String()]; !ok || old != value.Raw {
				changes[key.String()] = json.RawMessage(value.Raw)
			}
			return true
		})
		for key := range prev {
			if _, ok := current[key]; !ok {
				changes[key] = json.RawMessage("null")
			}
		}

		changed := make([]string, 0, len(changes))
		for key := range changes {
			changed = append(changed, key)
		}
		sort.Strings(changed)

		// map keys marshal in sorted order, so the payload is deterministic
		payload, err := json.Marshal(changes)
		if err != nil {
			payload = []byte("{}")
		}

		entry := types.WorkItemRevision{
			WorkItemID:    workItemID,
			Rev:           rev.Rev,
			ChangedFields: changed,
			Changes:       payload,
			RevisedBy:     rev.Fields.ChangedBy.String(),
		}
		if rev.Fields.ChangedDate != nil {
			entry.RevisedDate = *rev.Fields.ChangedDate
		}
		out = append(out, entry)
		prev = current
	}

	return out
}

// ToEffort decodes the effort-relevant fields of a stored revision. Sync and
// backfill both go through here so they see identical inputs.
func ToEffort(rev types.WorkItemRevision) effort.Revision {
	f := DecodeFields(gjson.ParseBytes(rev.Changes))

	out := effort.Revision{
		Rev:           rev.Rev,
		RemainingWork: f.RemainingWork,
		State:         f.State,
		ChangedDate:   f.ChangedDate,
	}
	if out.ChangedDate == nil && !rev.RevisedDate.IsZero() {
		d := rev.RevisedDate.UTC()
		out.ChangedDate = &d
	}
	return out
}

// ToEffortAll converts a slice of stored revisions
func ToEffortAll(revs []types.WorkItemRevision) []effort.Revision {
	out := make([]effort.Revision, len(revs))
	for i, r := range revs {
		out[i] = ToEffort(r)
	}
	return out
}

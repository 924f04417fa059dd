package devops

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const workItemPayload = `{
	"id": 42,
	"rev": 7,
	"fields": {
		"System.TeamProject": "Apollo",
		"System.WorkItemType": "Task",
		"System.Title": "Wire the exporter",
		"System.State": "Active",
		"System.AssignedTo": {"displayName": "Ana Souza", "uniqueName": "ana@example.com", "id": "u-1"},
		"System.IterationPath": "Apollo\\Sprint 12",
		"System.AreaPath": "Apollo",
		"System.CreatedDate": "2024-03-01T09:30:00.123Z",
		"System.ChangedDate": "2024-03-05T17:00:00Z",
		"Microsoft.VSTS.Scheduling.RemainingWork": 6.5,
		"Microsoft.VSTS.Scheduling.CompletedWork": "1.5",
		"Microsoft.VSTS.Scheduling.OriginalEstimate": 8
	}
}`

func TestDecodeWorkItem(t *testing.T) {
	w := decodeWorkItem(gjson.Parse(workItemPayload))

	assert.Equal(t, 42, w.ID)
	assert.Equal(t, 7, w.Rev)
	assert.Equal(t, "Task", w.Fields.WorkItemType)
	require.NotNil(t, w.Fields.State)
	assert.Equal(t, "Active", *w.Fields.State)
	require.NotNil(t, w.Fields.RemainingWork)
	assert.Equal(t, 6.5, *w.Fields.RemainingWork)
	require.NotNil(t, w.Fields.CompletedWork, "numeric strings are accepted")
	assert.Equal(t, 1.5, *w.Fields.CompletedWork)
	assert.Nil(t, w.Fields.ClosedDate)
	assert.Equal(t, "Ana Souza", w.Fields.AssignedTo.String())

	item := w.ToWorkItem("Apollo")
	assert.Equal(t, "Apollo", item.ProjectID)
	assert.Equal(t, `Apollo\Sprint 12`, item.IterationPath)
	assert.Equal(t, 8.0, item.OriginalEstimate)
	assert.Equal(t, time.Date(2024, 3, 5, 17, 0, 0, 0, time.UTC), item.ChangedDate)
	assert.Nil(t, item.InitialRemainingWork)

	snap := SnapshotOf(item)
	assert.Equal(t, 6.5, snap.RemainingWork)
	assert.Equal(t, 1.5, snap.CompletedWork)
	assert.Equal(t, "Active", snap.State)
}

func TestDecodeIdentity(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *IdentityRef
	}{
		{"object", `{"displayName":"Ana","uniqueName":"ana@x"}`, &IdentityRef{DisplayName: "Ana", UniqueName: "ana@x"}},
		{"legacy string", `"Ana Souza <ana@x>"`, &IdentityRef{DisplayName: "Ana Souza", UniqueName: "ana@x"}},
		{"plain string", `"Ana"`, &IdentityRef{DisplayName: "Ana"}},
		{"null", `null`, nil},
		{"empty string", `""`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeIdentity(gjson.Parse(tt.raw)))
		})
	}
}

func TestDecodeNumber(t *testing.T) {
	assert.Nil(t, decodeNumber(gjson.Parse(`null`)))
	assert.Nil(t, decodeNumber(gjson.Parse(`"n/a"`)))
	assert.Nil(t, decodeNumber(gjson.Result{}))
	assert.Equal(t, 0.0, *decodeNumber(gjson.Parse(`0`)))
	assert.Equal(t, 3.0, *decodeNumber(gjson.Parse(`" 3 "`)))
}

func TestCapacityHours(t *testing.T) {
	// Monday 2024-03-04 to Friday 2024-03-15: ten working days
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	finish := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	it := Iteration{ID: "it-1", StartDate: &start, FinishDate: &finish}

	capacity := []TeamMemberCapacity{
		{Member: IdentityRef{DisplayName: "Ana"}, CapacityPerDay: 6},
		{
			Member:         IdentityRef{DisplayName: "Bruno"},
			CapacityPerDay: 4,
			DaysOff: []DateRange{{
				Start: time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
			}},
		},
		{Member: IdentityRef{DisplayName: "Idle"}},
	}

	assert.Equal(t, 6*10+4*8.0, CapacityHours(it, capacity))
	assert.Equal(t, 0.0, CapacityHours(Iteration{}, capacity))
}

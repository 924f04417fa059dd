package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/effort"
	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func seedProject(t *testing.T, s *SQLiteStorage, id string) {
	t.Helper()
	require.NoError(t, s.UpsertProject(context.Background(), &types.Project{ID: id, Organization: "contoso", Team: id + " Team"}))
}

func f64(v float64) *float64 { return &v }

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)

	version, err := SchemaVersion(context.Background(), storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, ApplyMigrations(ctx, storage.db))
	require.NoError(t, ApplyMigrations(ctx, storage.db))

	var count int
	require.NoError(t, storage.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&count))
	assert.Equal(t, len(AllMigrations), count)
}

func TestRollbackMigration(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, RollbackMigration(ctx, storage.db))
	version, err := SchemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", version)

	// Re-applying brings the dropped table back
	require.NoError(t, ApplyMigrations(ctx, storage.db))
	version, err = SchemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestProjectAndLastSync(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	_, err := storage.GetProject(ctx, "Apollo")
	assert.ErrorIs(t, err, ErrNotFound)

	last, err := storage.GetLastSync(ctx, "Apollo")
	require.NoError(t, err)
	assert.Nil(t, last)

	seedProject(t, storage, "Apollo")

	project, err := storage.GetProject(ctx, "Apollo")
	require.NoError(t, err)
	assert.Equal(t, "contoso", project.Organization)
	assert.Equal(t, "Apollo Team", project.Team)
	assert.Nil(t, project.LastSyncedAt)

	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, storage.SetLastSync(ctx, "Apollo", at))

	last, err = storage.GetLastSync(ctx, "Apollo")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, at.Equal(*last))

	assert.ErrorIs(t, storage.SetLastSync(ctx, "Missing", at), ErrNotFound)
}

func TestUpsertWorkItem_KeepsDerivedFields(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	seedProject(t, storage, "Apollo")

	item := &types.WorkItem{
		ID:            42,
		ProjectID:     "Apollo",
		Rev:           3,
		Type:          "Task",
		Title:         "Wire the exporter",
		State:         "Active",
		IterationPath: `Apollo\Sprint 12`,
		RemainingWork: 5,
		CompletedWork: 3,
		CreatedDate:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		ChangedDate:   time.Date(2024, 3, 5, 17, 0, 0, 0, time.UTC),
	}
	require.NoError(t, storage.UpsertWorkItem(ctx, item))

	closed := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	require.NoError(t, storage.UpdateEffortFields(ctx, 42, effort.Fields{
		InitialRemainingWork: f64(8),
		LastRemainingWork:    f64(5),
		ClosedDate:           &closed,
	}))

	// A later live-field upsert must not clear derived columns
	item.Rev = 4
	item.RemainingWork = 0
	require.NoError(t, storage.UpsertWorkItem(ctx, item))

	got, err := storage.GetWorkItem(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Rev)
	assert.Equal(t, 0.0, got.RemainingWork)
	assert.Equal(t, `Apollo\Sprint 12`, got.IterationPath)
	assert.True(t, item.ChangedDate.Equal(got.ChangedDate))
	require.NotNil(t, got.InitialRemainingWork)
	assert.Equal(t, 8.0, *got.InitialRemainingWork)
	require.NotNil(t, got.LastRemainingWork)
	assert.Equal(t, 5.0, *got.LastRemainingWork)
	assert.Nil(t, got.DoneRemainingWork)
	require.NotNil(t, got.ClosedDate)
	assert.True(t, closed.Equal(*got.ClosedDate))
}

func TestUpdateEffortFields_NilLeavesColumn(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	seedProject(t, storage, "Apollo")
	require.NoError(t, storage.UpsertWorkItem(ctx, &types.WorkItem{ID: 1, ProjectID: "Apollo"}))

	require.NoError(t, storage.UpdateEffortFields(ctx, 1, effort.Fields{InitialRemainingWork: f64(4)}))
	require.NoError(t, storage.UpdateEffortFields(ctx, 1, effort.Fields{DoneRemainingWork: f64(2)}))

	got, err := storage.GetWorkItem(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4.0, *got.InitialRemainingWork)
	assert.Equal(t, 2.0, *got.DoneRemainingWork)
	assert.Nil(t, got.LastRemainingWork)

	assert.ErrorIs(t, storage.UpdateEffortFields(ctx, 999, effort.Fields{}), ErrNotFound)
}

func TestUpsertWorkItem_RequiresProject(t *testing.T) {
	storage := setupTestDB(t)
	err := storage.UpsertWorkItem(context.Background(), &types.WorkItem{ID: 1, ProjectID: "Nope"})
	assert.Error(t, err)
}

func TestListWorkItems(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	seedProject(t, storage, "Apollo")
	seedProject(t, storage, "Zeus")

	items := []types.WorkItem{
		{ID: 3, ProjectID: "Apollo", IterationPath: `Apollo\Sprint 1`, ChangedDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{ID: 1, ProjectID: "Apollo", IterationPath: `Apollo\Sprint 2`, ChangedDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{ID: 2, ProjectID: "Apollo", IterationPath: `Apollo\Sprint 10`, ChangedDate: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)},
		{ID: 9, ProjectID: "Zeus"},
	}
	for i := range items {
		require.NoError(t, storage.UpsertWorkItem(ctx, &items[i]))
	}

	all, err := storage.ListWorkItems(ctx, "Apollo", nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{all[0].ID, all[1].ID, all[2].ID})

	byID, err := storage.ListWorkItems(ctx, "Apollo", &WorkItemFilter{IDs: []int{3, 9}})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, 3, byID[0].ID)

	byPath, err := storage.ListWorkItems(ctx, "Apollo", &WorkItemFilter{IterationPathPrefix: `Apollo\Sprint 1`})
	require.NoError(t, err)
	require.Len(t, byPath, 1, "Sprint 10 is not under Sprint 1")
	assert.Equal(t, 3, byPath[0].ID)

	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	recent, err := storage.ListWorkItems(ctx, "Apollo", &WorkItemFilter{ChangedSince: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	ids, err := storage.ListWorkItemIDs(ctx, "Apollo")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids)
}

func TestUpsertRevisions(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	seedProject(t, storage, "Apollo")
	require.NoError(t, storage.UpsertWorkItem(ctx, &types.WorkItem{ID: 7, ProjectID: "Apollo"}))

	revs := []types.WorkItemRevision{
		{WorkItemID: 7, Rev: 2, ChangedFields: []string{"System.State"}, Changes: json.RawMessage(`{"System.State":"Active"}`), RevisedDate: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)},
		{WorkItemID: 7, Rev: 1, ChangedFields: []string{"System.State"}, Changes: json.RawMessage(`{"System.State":"New"}`), RevisedBy: "Ana"},
	}
	n, err := storage.UpsertRevisions(ctx, revs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-upserting the same (item, rev) replaces instead of duplicating
	revs[0].Changes = json.RawMessage(`{"System.State":"Done"}`)
	_, err = storage.UpsertRevisions(ctx, revs[:1])
	require.NoError(t, err)

	stored, err := storage.ListRevisions(ctx, 7)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 1, stored[0].Rev)
	assert.Equal(t, "Ana", stored[0].RevisedBy)
	assert.Equal(t, 2, stored[1].Rev)
	assert.JSONEq(t, `{"System.State":"Done"}`, string(stored[1].Changes))
	assert.Equal(t, []string{"System.State"}, stored[1].ChangedFields)
}

func TestSprints(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	seedProject(t, storage, "Apollo")

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	finish := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	sprint := &types.Sprint{ID: "it-1", ProjectID: "Apollo", Name: "Sprint 1", Path: `Apollo\Sprint 1`, StartDate: &start, FinishDate: &finish, CapacityHours: 60}
	require.NoError(t, storage.UpsertSprint(ctx, sprint))

	sprint.CapacityHours = 48
	require.NoError(t, storage.UpsertSprint(ctx, sprint))
	require.NoError(t, storage.UpsertSprint(ctx, &types.Sprint{ID: "it-2", ProjectID: "Apollo", Name: "Backlog", Path: "Apollo"}))

	sprints, err := storage.ListSprints(ctx, "Apollo")
	require.NoError(t, err)
	require.Len(t, sprints, 2)

	var first types.Sprint
	for _, s := range sprints {
		if s.ID == "it-1" {
			first = s
		}
	}
	assert.Equal(t, 48.0, first.CapacityHours)
	require.NotNil(t, first.StartDate)
	assert.True(t, start.Equal(*first.StartDate))
}

func TestPreparationRuns(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	_, err := storage.GetLatestPreparationRun(ctx, "Apollo", "2024-03")
	assert.ErrorIs(t, err, ErrNotFound)

	now := time.Now().UTC().Truncate(time.Second)
	first := &types.PreparationStatus{RunID: "run-1", ProjectID: "Apollo", Period: "2024-03", Status: types.StatusFailed, StartedAt: now, UpdatedAt: now}
	require.NoError(t, storage.CreatePreparationRun(ctx, first))
	assert.ErrorIs(t, storage.CreatePreparationRun(ctx, first), ErrAlreadyExists)

	second := &types.PreparationStatus{RunID: "run-2", ProjectID: "Apollo", Period: "2024-03", Status: types.StatusCollecting, StartedAt: now, UpdatedAt: now}
	require.NoError(t, storage.CreatePreparationRun(ctx, second))

	second.Status = types.StatusReady
	second.Progress = 100
	second.Chunks = 12
	second.Errors = []types.StatusError{{Source: "embedding", Message: "rate limited", Timestamp: now}}
	finished := now.Add(time.Minute)
	second.FinishedAt = &finished
	second.UpdatedAt = finished
	require.NoError(t, storage.UpdatePreparationRun(ctx, second))

	latest, err := storage.GetLatestPreparationRun(ctx, "Apollo", "2024-03")
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.RunID)
	assert.Equal(t, types.StatusReady, latest.Status)
	assert.Equal(t, 100, latest.Progress)
	assert.Equal(t, 12, latest.Chunks)
	require.Len(t, latest.Errors, 1)
	assert.Equal(t, "embedding", latest.Errors[0].Source)
	require.NotNil(t, latest.FinishedAt)
	assert.True(t, finished.Equal(*latest.FinishedAt))

	assert.ErrorIs(t, storage.UpdatePreparationRun(ctx, &types.PreparationStatus{RunID: "missing"}), ErrNotFound)
}

func TestTransaction(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	seedProject(t, storage, "Apollo")

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertWorkItem(ctx, &types.WorkItem{ID: 5, ProjectID: "Apollo"}))
	require.NoError(t, tx.Rollback())

	_, err = storage.GetWorkItem(ctx, 5)
	assert.ErrorIs(t, err, ErrNotFound)

	tx, err = storage.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertWorkItem(ctx, &types.WorkItem{ID: 5, ProjectID: "Apollo"}))
	require.NoError(t, tx.UpdateEffortFields(ctx, 5, effort.Fields{LastRemainingWork: f64(1)}))
	require.NoError(t, tx.Commit())

	got, err := storage.GetWorkItem(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, *got.LastRemainingWork)
}

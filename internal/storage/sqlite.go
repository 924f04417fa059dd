package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/effort"
	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// DB exposes the underlying handle for maintenance commands
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// nullTime converts an optional time to something the driver can bind
func nullTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

// Project operations

// upsertProjectWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertProjectWithQuerier(ctx context.Context, q querier, project *types.Project) error {
	query := `
		INSERT INTO projects (id, organization, team, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			organization = excluded.organization,
			team = excluded.team,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	if _, err := q.ExecContext(ctx, query, project.ID, project.Organization, project.Team, now, now); err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertProject(ctx context.Context, project *types.Project) error {
	return s.upsertProjectWithQuerier(ctx, s.querier(), project)
}

// GetProject returns a project by its Azure project name
func (s *SQLiteStorage) GetProject(ctx context.Context, id string) (*types.Project, error) {
	query := `
		SELECT id, organization, team, last_synced_at, created_at, updated_at
		FROM projects
		WHERE id = ?
	`
	var project types.Project
	var team sql.NullString
	var lastSynced, createdAt, updatedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&project.ID, &project.Organization, &team, &lastSynced, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	project.Team = team.String
	project.LastSyncedAt = timePtr(lastSynced)
	if createdAt.Valid {
		project.CreatedAt = createdAt.Time.UTC()
	}
	if updatedAt.Valid {
		project.UpdatedAt = updatedAt.Time.UTC()
	}
	return &project, nil
}

// GetLastSync returns the incremental sync watermark, nil when the project was never synced
func (s *SQLiteStorage) GetLastSync(ctx context.Context, projectID string) (*time.Time, error) {
	project, err := s.GetProject(ctx, projectID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return project.LastSyncedAt, nil
}

// SetLastSync advances the incremental sync watermark
func (s *SQLiteStorage) SetLastSync(ctx context.Context, projectID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE projects SET last_synced_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), projectID)
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Work item operations

const workItemColumns = `
	id, project_id, rev, work_item_type, title, state, assigned_to, iteration_path, area_path,
	remaining_work, completed_work, original_estimate, created_date, changed_date, closed_date,
	initial_remaining_work, last_remaining_work, done_remaining_work
`

// upsertWorkItemWithQuerier is the internal implementation that uses a querier.
// closed_date and the derived columns belong to UpdateEffortFields.
func (s *SQLiteStorage) upsertWorkItemWithQuerier(ctx context.Context, q querier, item *types.WorkItem) error {
	query := `
		INSERT INTO work_items (
			id, project_id, rev, work_item_type, title, state, assigned_to,
			iteration_path, area_path, remaining_work, completed_work, original_estimate,
			created_date, changed_date, synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			rev = excluded.rev,
			work_item_type = excluded.work_item_type,
			title = excluded.title,
			state = excluded.state,
			assigned_to = excluded.assigned_to,
			iteration_path = excluded.iteration_path,
			area_path = excluded.area_path,
			remaining_work = excluded.remaining_work,
			completed_work = excluded.completed_work,
			original_estimate = excluded.original_estimate,
			created_date = excluded.created_date,
			changed_date = excluded.changed_date,
			synced_at = excluded.synced_at
	`
	_, err := q.ExecContext(ctx, query,
		item.ID, item.ProjectID, item.Rev, item.Type, item.Title, item.State, item.AssignedTo,
		item.IterationPath, item.AreaPath, item.RemainingWork, item.CompletedWork, item.OriginalEstimate,
		nullTime(&item.CreatedDate), nullTime(&item.ChangedDate), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert work item %d: %w", item.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertWorkItem(ctx context.Context, item *types.WorkItem) error {
	return s.upsertWorkItemWithQuerier(ctx, s.querier(), item)
}

// updateEffortFieldsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) updateEffortFieldsWithQuerier(ctx context.Context, q querier, workItemID int, fields effort.Fields) error {
	query := `
		UPDATE work_items SET
			initial_remaining_work = COALESCE(?, initial_remaining_work),
			last_remaining_work = COALESCE(?, last_remaining_work),
			done_remaining_work = COALESCE(?, done_remaining_work),
			closed_date = COALESCE(?, closed_date)
		WHERE id = ?
	`
	result, err := q.ExecContext(ctx, query,
		nullFloat(fields.InitialRemainingWork), nullFloat(fields.LastRemainingWork),
		nullFloat(fields.DoneRemainingWork), nullTime(fields.ClosedDate), workItemID)
	if err != nil {
		return fmt.Errorf("failed to update effort fields of %d: %w", workItemID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) UpdateEffortFields(ctx context.Context, workItemID int, fields effort.Fields) error {
	return s.updateEffortFieldsWithQuerier(ctx, s.querier(), workItemID, fields)
}

func scanWorkItem(scan func(dest ...interface{}) error) (*types.WorkItem, error) {
	var item types.WorkItem
	var itemType, title, state, assignedTo, iterationPath, areaPath sql.NullString
	var createdDate, changedDate, closedDate sql.NullTime
	var initial, last, done sql.NullFloat64

	err := scan(
		&item.ID, &item.ProjectID, &item.Rev, &itemType, &title, &state, &assignedTo,
		&iterationPath, &areaPath, &item.RemainingWork, &item.CompletedWork, &item.OriginalEstimate,
		&createdDate, &changedDate, &closedDate, &initial, &last, &done,
	)
	if err != nil {
		return nil, err
	}

	item.Type = itemType.String
	item.Title = title.String
	item.State = state.String
	item.AssignedTo = assignedTo.String
	item.IterationPath = iterationPath.String
	item.AreaPath = areaPath.String
	if createdDate.Valid {
		item.CreatedDate = createdDate.Time.UTC()
	}
	if changedDate.Valid {
		item.ChangedDate = changedDate.Time.UTC()
	}
	item.ClosedDate = timePtr(closedDate)
	item.InitialRemainingWork = floatPtr(initial)
	item.LastRemainingWork = floatPtr(last)
	item.DoneRemainingWork = floatPtr(done)
	return &item, nil
}

// GetWorkItem returns one stored work item
func (s *SQLiteStorage) GetWorkItem(ctx context.Context, id int) (*types.WorkItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE id = ?`, id)
	item, err := scanWorkItem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListWorkItems returns the project's work items ordered by id
func (s *SQLiteStorage) ListWorkItems(ctx context.Context, projectID string, filter *WorkItemFilter) ([]types.WorkItem, error) {
	where := []string{"project_id = ?"}
	args := []interface{}{projectID}

	if filter != nil {
		if len(filter.IDs) > 0 {
			placeholders := make([]string, len(filter.IDs))
			for i, id := range filter.IDs {
				placeholders[i] = "?"
				args = append(args, id)
			}
			where = append(where, "id IN ("+strings.Join(placeholders, ",")+")")
		}
		if filter.IterationPathPrefix != "" {
			where = append(where, "(iteration_path = ? OR substr(iteration_path, 1, ?) = ?)")
			prefix := filter.IterationPathPrefix + `\`
			args = append(args, filter.IterationPathPrefix, len(prefix), prefix)
		}
		if filter.ChangedSince != nil {
			where = append(where, "changed_date >= ?")
			args = append(args, filter.ChangedSince.UTC())
		}
	}

	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := make([]types.WorkItem, 0)
	for rows.Next() {
		item, err := scanWorkItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ListWorkItemIDs returns the ids of every stored work item of a project
func (s *SQLiteStorage) ListWorkItemIDs(ctx context.Context, projectID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM work_items WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ids := make([]int, 0)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Revision operations

// upsertRevisionsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertRevisionsWithQuerier(ctx context.Context, q querier, revisions []types.WorkItemRevision) (int, error) {
	query := `
		INSERT INTO work_item_revisions (work_item_id, rev, changed_fields, changes, revised_date, revised_by)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(work_item_id, rev) DO UPDATE SET
			changed_fields = excluded.changed_fields,
			changes = excluded.changes,
			revised_date = excluded.revised_date,
			revised_by = excluded.revised_by
	`
	stored := 0
	for _, rev := range revisions {
		fields := rev.ChangedFields
		if fields == nil {
			fields = []string{}
		}
		changedFields, err := json.Marshal(fields)
		if err != nil {
			return stored, fmt.Errorf("failed to encode changed fields: %w", err)
		}
		changes := string(rev.Changes)
		if changes == "" {
			changes = "{}"
		}

		if _, err := q.ExecContext(ctx, query,
			rev.WorkItemID, rev.Rev, string(changedFields), changes,
			nullTime(&rev.RevisedDate), rev.RevisedBy,
		); err != nil {
			return stored, fmt.Errorf("failed to upsert revision %d/%d: %w", rev.WorkItemID, rev.Rev, err)
		}
		stored++
	}
	return stored, nil
}

func (s *SQLiteStorage) UpsertRevisions(ctx context.Context, revisions []types.WorkItemRevision) (int, error) {
	return s.upsertRevisionsWithQuerier(ctx, s.querier(), revisions)
}

// ListRevisions returns a work item's stored revisions in ascending rev order
func (s *SQLiteStorage) ListRevisions(ctx context.Context, workItemID int) ([]types.WorkItemRevision, error) {
	query := `
		SELECT work_item_id, rev, changed_fields, changes, revised_date, revised_by
		FROM work_item_revisions
		WHERE work_item_id = ?
		ORDER BY rev
	`
	rows, err := s.db.QueryContext(ctx, query, workItemID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	revisions := make([]types.WorkItemRevision, 0)
	for rows.Next() {
		var rev types.WorkItemRevision
		var changedFields, changes string
		var revisedDate sql.NullTime
		var revisedBy sql.NullString

		if err := rows.Scan(&rev.WorkItemID, &rev.Rev, &changedFields, &changes, &revisedDate, &revisedBy); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(changedFields), &rev.ChangedFields); err != nil {
			return nil, fmt.Errorf("failed to decode changed fields of %d/%d: %w", rev.WorkItemID, rev.Rev, err)
		}
		rev.Changes = json.RawMessage(changes)
		if revisedDate.Valid {
			rev.RevisedDate = revisedDate.Time.UTC()
		}
		rev.RevisedBy = revisedBy.String
		revisions = append(revisions, rev)
	}
	return revisions, rows.Err()
}

// Sprint operations

// upsertSprintWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertSprintWithQuerier(ctx context.Context, q querier, sprint *types.Sprint) error {
	query := `
		INSERT INTO sprints (id, project_id, name, path, start_date, finish_date, time_frame, capacity_hours, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			start_date = excluded.start_date,
			finish_date = excluded.finish_date,
			time_frame = excluded.time_frame,
			capacity_hours = excluded.capacity_hours,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		sprint.ID, sprint.ProjectID, sprint.Name, sprint.Path,
		nullTime(sprint.StartDate), nullTime(sprint.FinishDate), sprint.TimeFrame,
		sprint.CapacityHours, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert sprint %s: %w", sprint.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertSprint(ctx context.Context, sprint *types.Sprint) error {
	return s.upsertSprintWithQuerier(ctx, s.querier(), sprint)
}

// ListSprints returns a project's sprints ordered by start date
func (s *SQLiteStorage) ListSprints(ctx context.Context, projectID string) ([]types.Sprint, error) {
	query := `
		SELECT id, project_id, name, path, start_date, finish_date, time_frame, capacity_hours
		FROM sprints
		WHERE project_id = ?
		ORDER BY start_date, id
	`
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	sprints := make([]types.Sprint, 0)
	for rows.Next() {
		var sprint types.Sprint
		var start, finish sql.NullTime
		var timeFrame sql.NullString
		if err := rows.Scan(&sprint.ID, &sprint.ProjectID, &sprint.Name, &sprint.Path,
			&start, &finish, &timeFrame, &sprint.CapacityHours); err != nil {
			return nil, err
		}
		sprint.StartDate = timePtr(start)
		sprint.FinishDate = timePtr(finish)
		sprint.TimeFrame = timeFrame.String
		sprints = append(sprints, sprint)
	}
	return sprints, rows.Err()
}

// Preparation run operations

func (s *SQLiteStorage) CreatePreparationRun(ctx context.Context, run *types.PreparationStatus) error {
	errs, err := encodeStatusErrors(run.Errors)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO preparation_runs (
			id, project_id, period_key, status, progress, step,
			work_items, sprints, chunks, errors, started_at, updated_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		run.RunID, run.ProjectID, run.Period, string(run.Status), run.Progress, run.Step,
		run.WorkItems, run.Sprints, run.Chunks, errs,
		run.StartedAt.UTC(), run.UpdatedAt.UTC(), nullTime(run.FinishedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create preparation run: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpdatePreparationRun(ctx context.Context, run *types.PreparationStatus) error {
	errs, err := encodeStatusErrors(run.Errors)
	if err != nil {
		return err
	}
	query := `
		UPDATE preparation_runs SET
			status = ?, progress = ?, step = ?, work_items = ?, sprints = ?, chunks = ?,
			errors = ?, updated_at = ?, finished_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		string(run.Status), run.Progress, run.Step, run.WorkItems, run.Sprints, run.Chunks,
		errs, run.UpdatedAt.UTC(), nullTime(run.FinishedAt), run.RunID)
	if err != nil {
		return fmt.Errorf("failed to update preparation run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetLatestPreparationRun returns the most recently created run for a period
func (s *SQLiteStorage) GetLatestPreparationRun(ctx context.Context, projectID, period string) (*types.PreparationStatus, error) {
	query := `
		SELECT id, project_id, period_key, status, progress, step,
		       work_items, sprints, chunks, errors, started_at, updated_at, finished_at
		FROM preparation_runs
		WHERE project_id = ? AND period_key = ?
		ORDER BY rowid DESC
		LIMIT 1
	`
	var run types.PreparationStatus
	var status, errs string
	var step sql.NullString
	var startedAt, updatedAt, finishedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, projectID, period).Scan(
		&run.RunID, &run.ProjectID, &run.Period, &status, &run.Progress, &step,
		&run.WorkItems, &run.Sprints, &run.Chunks, &errs, &startedAt, &updatedAt, &finishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	run.Status = types.RunStatus(status)
	run.Step = step.String
	if err := json.Unmarshal([]byte(errs), &run.Errors); err != nil {
		return nil, fmt.Errorf("failed to decode run errors: %w", err)
	}
	if run.Errors == nil {
		run.Errors = []types.StatusError{}
	}
	if startedAt.Valid {
		run.StartedAt = startedAt.Time.UTC()
	}
	if updatedAt.Valid {
		run.UpdatedAt = updatedAt.Time.UTC()
	}
	run.FinishedAt = timePtr(finishedAt)
	return &run, nil
}

func encodeStatusErrors(errs []types.StatusError) (string, error) {
	if errs == nil {
		errs = []types.StatusError{}
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return "", fmt.Errorf("failed to encode run errors: %w", err)
	}
	return string(data), nil
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, projectID string, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, s.db, projectID, queryVector, limit, filters)
}

func (s *SQLiteStorage) SearchText(ctx context.Context, projectID string, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, s.db, projectID, query, limit, filters)
}

// Transaction implementations delegate writes to the querier helpers

func (t *sqliteTx) UpsertProject(ctx context.Context, project *types.Project) error {
	return t.storage.upsertProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) UpsertWorkItem(ctx context.Context, item *types.WorkItem) error {
	return t.storage.upsertWorkItemWithQuerier(ctx, t.querier(), item)
}

func (t *sqliteTx) UpdateEffortFields(ctx context.Context, workItemID int, fields effort.Fields) error {
	return t.storage.updateEffortFieldsWithQuerier(ctx, t.querier(), workItemID, fields)
}

func (t *sqliteTx) UpsertRevisions(ctx context.Context, revisions []types.WorkItemRevision) (int, error) {
	return t.storage.upsertRevisionsWithQuerier(ctx, t.querier(), revisions)
}

func (t *sqliteTx) UpsertSprint(ctx context.Context, sprint *types.Sprint) error {
	return t.storage.upsertSprintWithQuerier(ctx, t.querier(), sprint)
}

func (t *sqliteTx) InsertChunks(ctx context.Context, projectID string, sourceType types.SourceType, sourceID string, chunks []types.ChunkInput) ([]int64, error) {
	return t.storage.insertChunksWithQuerier(ctx, t.querier(), projectID, sourceType, sourceID, chunks)
}

func (t *sqliteTx) DeleteChunksBySource(ctx context.Context, projectID string, sourceType types.SourceType, sourceID string) (int64, error) {
	return t.storage.deleteChunksBySourceWithQuerier(ctx, t.querier(), projectID, sourceType, sourceID)
}

func (t *sqliteTx) DeleteChunksByDocument(ctx context.Context, projectID, documentID string) (int64, error) {
	return t.storage.deleteChunksByDocumentWithQuerier(ctx, t.querier(), projectID, documentID)
}

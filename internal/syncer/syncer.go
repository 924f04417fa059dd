package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/devops"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/effort"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/metrics"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/retry"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/storage"
	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

// Mode names a sync entrypoint
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
	ModeItem        Mode = "item"
	ModeIteration   Mode = "iteration"
	ModeBackfill    Mode = "backfill"
)

var (
	ErrSyncInProgress   = errors.New("a sync is already running for this project")
	ErrWorkItemNotFound = errors.New("work item not found in azure devops")
	ErrProjectRequired  = errors.New("project id is required")
	ErrIterationPath    = errors.New("iteration path is required")
	ErrForeignProject   = errors.New("project is not the azure devops project this client is bound to")
)

// Options configures a Syncer
type Options struct {
	Organization string
	Project      string // Project the client is bound to; empty accepts any
	Team         string
	BatchSize    int          // Work items per batch request, at most devops.MaxBatchIDs
	Retry        retry.Policy // Applied to whole runs, transient errors only
}

// Result summarizes one sync run
type Result struct {
	Mode           Mode                `json:"mode"`
	ProjectID      string              `json:"projectId"`
	Processed      int                 `json:"processed"`
	EffortUpdated  int                 `json:"effortUpdated"`
	Failed         int                 `json:"failed"`
	Revisions      int                 `json:"revisions"`
	Sprints        int                 `json:"sprints"`
	FellBackToFull bool                `json:"fellBackToFull,omitempty"`
	Errors         []types.StatusError `json:"errors,omitempty"`
	StartedAt      time.Time           `json:"startedAt"`
	FinishedAt     time.Time           `json:"finishedAt"`
}

func (r *Result) fail(source string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, types.NewStatusError(source, err))
}

// Syncer mirrors Azure DevOps work items, revisions and sprints into storage
// and keeps the derived effort fields current
type Syncer struct {
	client  devops.Client
	store   storage.Storage
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
	locks   projectLocks
	history runHistory
	now     func() time.Time
}

// New creates a Syncer
func New(client devops.Client, store storage.Storage, opts Options, logger *zap.Logger, m *metrics.Metrics) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BatchSize <= 0 || opts.BatchSize > devops.MaxBatchIDs {
		opts.BatchSize = devops.MaxBatchIDs
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.Policy{
			MaxAttempts: 3,
			Delay:       retry.Fixed(time.Second, 3*time.Second, 5*time.Second),
		}
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = retry.IsTransient
	}
	return &Syncer{
		client:  client,
		store:   store,
		opts:    opts,
		logger:  logger,
		metrics: m,
		history: newRunHistory(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// FullSync fetches every work item of the project with its revisions,
// recomputes effort fields and refreshes sprints and capacity
func (s *Syncer) FullSync(ctx context.Context, projectID string) (*Result, error) {
	return s.run(ctx, projectID, ModeFull, s.fullSync)
}

// IncrementalSync only fetches items changed since the last completed sync.
// Without a watermark it runs a full sync instead.
func (s *Syncer) IncrementalSync(ctx context.Context, projectID string) (*Result, error) {
	return s.run(ctx, projectID, ModeIncremental, s.incrementalSync)
}

// BackfillEffort recomputes effort fields of every stored work item from
// stored revisions, without calling Azure DevOps. It is idempotent.
func (s *Syncer) BackfillEffort(ctx context.Context, projectID string) (*Result, error) {
	return s.run(ctx, projectID, ModeBackfill, s.backfill)
}

// SyncItem refreshes a single work item and its effort fields
func (s *Syncer) SyncItem(ctx context.Context, projectID string, id int) (*Result, error) {
	return s.run(ctx, projectID, ModeItem, func(ctx context.Context, res *Result) error {
		items, err := s.client.GetWorkItems(ctx, []int{id})
		if err != nil {
			if errors.Is(err, devops.ErrNotFound) {
				return fmt.Errorf("%w: %d", ErrWorkItemNotFound, id)
			}
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("%w: %d", ErrWorkItemNotFound, id)
		}
		if err := s.ensureProject(ctx, projectID); err != nil {
			return err
		}
		if err := s.syncOne(ctx, projectID, items[0], res); err != nil {
			return err
		}
		res.Processed++
		return nil
	})
}

// CheckProject reports whether a run of mode may target projectID. Modes that
// call Azure DevOps only serve the project the client is bound to; backfill
// reads storage alone and accepts any project.
func (s *Syncer) CheckProject(mode Mode, projectID string) error {
	if projectID == "" {
		return ErrProjectRequired
	}
	if mode == ModeBackfill || s.opts.Project == "" || projectID == s.opts.Project {
		return nil
	}
	return fmt.Errorf("%w: got %q, bound to %q", ErrForeignProject, projectID, s.opts.Project)
}

// SyncIteration refreshes the work items under an iteration path. It leaves
// sprints and the incremental watermark alone.
func (s *Syncer) SyncIteration(ctx context.Context, projectID, iterationPath string) (*Result, error) {
	iterationPath = strings.TrimSpace(iterationPath)
	if iterationPath == "" {
		return nil, ErrIterationPath
	}
	return s.run(ctx, projectID, ModeIteration, func(ctx context.Context, res *Result) error {
		if err := s.ensureProject(ctx, res.ProjectID); err != nil {
			return err
		}
		ids, err := s.client.QueryWorkItemIDs(ctx, devops.InIterationQuery(res.ProjectID, iterationPath))
		if err != nil {
			return fmt.Errorf("failed to query iteration work items: %w", err)
		}
		return s.syncItems(ctx, ids, res)
	})
}

type runFunc func(ctx context.Context, res *Result) error

// run guards against concurrent runs per project and retries the whole run
// on transient failures. Each attempt starts from a fresh Result.
func (s *Syncer) run(ctx context.Context, projectID string, mode Mode, fn runFunc) (*Result, error) {
	if err := s.CheckProject(mode, projectID); err != nil {
		return nil, err
	}
	lock := s.locks.get(projectID)
	if !lock.TryAcquire() {
		return nil, ErrSyncInProgress
	}
	defer lock.Release()

	log := s.logger.With(zap.String("project", projectID), zap.String("mode", string(mode)))
	log.Info("sync started")

	attempt := 0
	var res *Result
	err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			log.Warn("retrying sync after transient error", zap.Int("attempt", attempt))
		}
		res = &Result{Mode: mode, ProjectID: projectID, StartedAt: s.now()}
		err := fn(ctx, res)
		res.FinishedAt = s.now()
		return err
	})

	s.metrics.SyncRun(string(mode), err)
	s.history.record(projectID, mode, res, err)
	if res != nil {
		s.metrics.ItemsSynced(string(mode), res.Processed)
		s.metrics.ItemsFailed(string(mode), res.Failed)
		s.metrics.Revisions(res.Revisions)
	}
	if err != nil {
		log.Error("sync failed", zap.Int("attempts", attempt), zap.Error(err))
		return res, err
	}

	log.Info("sync completed",
		zap.Int("processed", res.Processed),
		zap.Int("effort_updated", res.EffortUpdated),
		zap.Int("failed", res.Failed),
		zap.Int("revisions", res.Revisions),
		zap.Int("sprints", res.Sprints),
		zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)))
	return res, nil
}

func (s *Syncer) fullSync(ctx context.Context, res *Result) error {
	if err := s.ensureProject(ctx, res.ProjectID); err != nil {
		return err
	}

	ids, err := s.client.QueryWorkItemIDs(ctx, devops.AllItemsQuery(res.ProjectID))
	if err != nil {
		return fmt.Errorf("failed to query work items: %w", err)
	}
	if err := s.syncItems(ctx, ids, res); err != nil {
		return err
	}
	if err := s.syncSprints(ctx, res); err != nil {
		return err
	}
	return s.store.SetLastSync(ctx, res.ProjectID, res.StartedAt)
}

func (s *Syncer) incrementalSync(ctx context.Context, res *Result) error {
	last, err := s.store.GetLastSync(ctx, res.ProjectID)
	if err != nil {
		return err
	}
	if last == nil {
		s.logger.Warn("no previous sync found, running full sync instead", zap.String("project", res.ProjectID))
		res.FellBackToFull = true
		return s.fullSync(ctx, res)
	}

	ids, err := s.client.QueryWorkItemIDs(ctx, devops.ChangedSinceQuery(res.ProjectID, *last))
	if err != nil {
		return fmt.Errorf("failed to query changed work items: %w", err)
	}
	if err := s.syncItems(ctx, ids, res); err != nil {
		return err
	}
	return s.store.SetLastSync(ctx, res.ProjectID, res.StartedAt)
}

func (s *Syncer) backfill(ctx context.Context, res *Result) error {
	ids, err := s.store.ListWorkItemIDs(ctx, res.ProjectID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		changed, err := s.reconcileStored(ctx, id)
		if err != nil {
			s.logger.Warn("effort backfill failed", zap.Int("work_item", id), zap.Error(err))
			res.fail(itemSource(id), err)
			continue
		}
		res.Processed++
		if changed {
			res.EffortUpdated++
		}
	}
	return nil
}

// syncItems fetches ids in sequential batches. A failed batch request fails
// the run; a failed item is recorded and skipped.
func (s *Syncer) syncItems(ctx context.Context, ids []int, res *Result) error {
	for start := 0; start < len(ids); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(ids) {
			end = len(ids)
		}

		items, err := s.client.GetWorkItems(ctx, ids[start:end])
		if err != nil {
			return fmt.Errorf("failed to fetch work items %d-%d: %w", start, end, err)
		}

		for _, wi := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.syncOne(ctx, res.ProjectID, wi, res); err != nil {
				s.logger.Warn("work item sync failed", zap.Int("work_item", wi.ID), zap.Error(err))
				res.fail(itemSource(wi.ID), err)
				continue
			}
			res.Processed++
		}
	}
	return nil
}

// syncOne stores the live fields and revision history of one item, then
// recomputes its effort fields from what was stored
func (s *Syncer) syncOne(ctx context.Context, projectID string, wi devops.WorkItem, res *Result) error {
	item := wi.ToWorkItem(projectID)
	if item.ID <= 0 {
		return errors.New("work item payload has no id")
	}

	// A failed revision fetch is not retried; the item is reported and the
	// live fields are still refreshed
	revs, revErr := s.client.GetRevisions(ctx, item.ID)

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.UpsertWorkItem(ctx, &item); err != nil {
		return err
	}
	if revErr == nil {
		n, err := tx.UpsertRevisions(ctx, devops.Diff(item.ID, revs))
		if err != nil {
			return err
		}
		res.Revisions += n
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if revErr != nil {
		return fmt.Errorf("failed to fetch revisions: %w", revErr)
	}

	changed, err := s.reconcileStored(ctx, item.ID)
	if err != nil {
		return err
	}
	if changed {
		res.EffortUpdated++
	}
	return nil
}

// reconcileStored is the single effort path shared by every sync mode: the
// stored row and stored revisions go through Reconcile, the result is
// ratcheted onto the stored fields and written if anything moved
func (s *Syncer) reconcileStored(ctx context.Context, id int) (bool, error) {
	item, err := s.store.GetWorkItem(ctx, id)
	if err != nil {
		return false, err
	}
	revs, err := s.store.ListRevisions(ctx, id)
	if err != nil {
		return false, err
	}

	existing := storage.EffortFieldsOf(item)
	result := effort.Reconcile(devops.SnapshotOf(*item), devops.ToEffortAll(revs))
	fields := effort.Apply(existing, result)
	if !fields.Changed(existing) {
		return false, nil
	}
	if err := s.store.UpdateEffortFields(ctx, id, fields); err != nil {
		return false, err
	}
	return true, nil
}

// syncSprints refreshes iterations and their capacity. A failed capacity
// lookup stores the sprint without capacity.
func (s *Syncer) syncSprints(ctx context.Context, res *Result) error {
	iterations, err := s.client.ListIterations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list iterations: %w", err)
	}

	for _, it := range iterations {
		capacity, err := s.client.GetIterationCapacity(ctx, it.ID)
		if err != nil {
			s.logger.Warn("iteration capacity unavailable", zap.String("iteration", it.Path), zap.Error(err))
			res.Errors = append(res.Errors, types.NewStatusError("sprint:"+it.ID, err))
			capacity = nil
		}
		sprint := it.ToSprint(res.ProjectID, capacity)
		if err := s.store.UpsertSprint(ctx, &sprint); err != nil {
			return err
		}
		res.Sprints++
	}
	return nil
}

func (s *Syncer) ensureProject(ctx context.Context, projectID string) error {
	if _, err := s.store.GetProject(ctx, projectID); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return s.store.UpsertProject(ctx, &types.Project{
		ID:           projectID,
		Organization: s.opts.Organization,
		Team:         s.opts.Team,
	})
}

func itemSource(id int) string {
	return "workitem:" + strconv.Itoa(id)
}

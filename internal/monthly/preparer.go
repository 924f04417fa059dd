package monthly

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/embedder"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/metrics"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/storage"
	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

const (
	DefaultStaleAfter = 30 * time.Minute
	DefaultRunTimeout = 30 * time.Minute
)

var (
	ErrMissingProject = errors.New("project id is required")
	ErrRunNotFound    = errors.New("no preparation run for this project and period")
)

// Progress checkpoints reported while a run collects
const (
	stepQueued    = "queued"
	stepLoading   = "loading work items and sprints"
	stepWorkItems = "building work item snapshots"
	stepSprints   = "building sprint snapshots"
	stepEmbedding = "embedding snapshots"
	stepStoring   = "storing chunks"
	stepDone      = "done"
)

// CacheInvalidator is notified when period chunks were replaced
type CacheInvalidator interface {
	InvalidateCache()
}

// Options configures a Preparer
type Options struct {
	StaleAfter  time.Duration // A collecting run older than this may be restarted
	RunTimeout  time.Duration // Upper bound for one detached run
	BatchSize   int           // Embedding batch size
	Invalidator CacheInvalidator
}

// Preparer regenerates the period-scoped chunks (work item and sprint
// snapshots) of a project for one month
type Preparer struct {
	store    storage.Storage
	embedder embedder.Embedder
	statuses StatusStore
	opts     Options
	logger   *zap.Logger
	metrics  *metrics.Metrics

	runs  sync.WaitGroup
	now   func() time.Time
	newID func() string
}

// NewPreparer creates a Preparer. statuses may be shared with other
// components that poll progress.
func NewPreparer(store storage.Storage, emb embedder.Embedder, statuses StatusStore, opts Options, logger *zap.Logger, m *metrics.Metrics) *Preparer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if statuses == nil {
		statuses = NewMemoryStatusStore(DefaultStatusTTL, DefaultStatusSize)
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = embedder.DefaultBatchSize
	}
	return &Preparer{
		store:    store,
		embedder: emb,
		statuses: statuses,
		opts:     opts,
		logger:   logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Prepare starts collecting a period and returns its initial status right
// away. A run for the same project and period that is still collecting and
// has reported progress within StaleAfter is returned instead of starting a
// new one.
func (p *Preparer) Prepare(ctx context.Context, projectID, periodKey string) (*types.PreparationStatus, error) {
	if projectID == "" {
		return nil, ErrMissingProject
	}
	period, err := types.ParsePeriod(periodKey)
	if err != nil {
		return nil, err
	}
	periodKey = period.Key()

	existing, err := p.Status(ctx, projectID, periodKey)
	switch {
	case err == nil:
		if existing.Status == types.StatusCollecting && p.now().Sub(existing.UpdatedAt) < p.opts.StaleAfter {
			p.logger.Info("preparation already running",
				zap.String("project", projectID),
				zap.String("period", periodKey),
				zap.String("run_id", existing.RunID))
			return existing, nil
		}
	case !errors.Is(err, ErrRunNotFound):
		return nil, err
	}

	now := p.now()
	status := &types.PreparationStatus{
		RunID:     p.newID(),
		ProjectID: projectID,
		Period:    periodKey,
		Status:    types.StatusCollecting,
		Step:      stepQueued,
		Errors:    []types.StatusError{},
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := p.store.CreatePreparationRun(ctx, status); err != nil {
		return nil, fmt.Errorf("failed to record preparation run: %w", err)
	}
	p.statuses.Set(status)

	p.logger.Info("preparation started",
		zap.String("project", projectID),
		zap.String("period", periodKey),
		zap.String("run_id", status.RunID))

	// The run outlives the request that triggered it
	p.runs.Add(1)
	go func(run *types.PreparationStatus) {
		defer p.runs.Done()
		runCtx, cancel := context.WithTimeout(context.Background(), p.opts.RunTimeout)
		defer cancel()
		p.collect(runCtx, run, period)
	}(cloneStatus(status))

	return status, nil
}

// Status returns the latest known status of a period: the cache first, then
// the durable run row
func (p *Preparer) Status(ctx context.Context, projectID, periodKey string) (*types.PreparationStatus, error) {
	if projectID == "" {
		return nil, ErrMissingProject
	}
	period, err := types.ParsePeriod(periodKey)
	if err != nil {
		return nil, err
	}
	periodKey = period.Key()

	if st, ok := p.statuses.Get(projectID, periodKey); ok {
		return st, nil
	}

	st, err := p.store.GetLatestPreparationRun(ctx, projectID, periodKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	p.statuses.Set(st)
	return st, nil
}

// Wait blocks until every detached run has finished
func (p *Preparer) Wait() {
	p.runs.Wait()
}

func (p *Preparer) collect(ctx context.Context, run *types.PreparationStatus, period types.Period) {
	log := p.logger.With(
		zap.String("project", run.ProjectID),
		zap.String("period", run.Period),
		zap.String("run_id", run.RunID))

	if err := p.collectChunks(ctx, run, period); err != nil {
		log.Error("preparation failed", zap.String("step", run.Step), zap.Error(err))
		run.Status = types.StatusFailed
		run.Errors = append(run.Errors, types.NewStatusError(run.Step, err))
	} else {
		run.Status = types.StatusReady
		run.Progress = 100
		run.Step = stepDone
		log.Info("preparation ready",
			zap.Int("work_items", run.WorkItems),
			zap.Int("sprints", run.Sprints),
			zap.Int("chunks", run.Chunks),
			zap.Int("errors", len(run.Errors)))
	}

	finished := p.now()
	run.FinishedAt = &finished
	p.report(ctx, run)
	p.metrics.PreparationFinished(string(run.Status))
}

func (p *Preparer) collectChunks(ctx context.Context, run *types.PreparationStatus, period types.Period) error {
	p.advance(ctx, run, stepLoading, 10)
	items, err := p.store.ListWorkItems(ctx, run.ProjectID, nil)
	if err != nil {
		return err
	}
	sprints, err := p.store.ListSprints(ctx, run.ProjectID)
	if err != nil {
		return err
	}
	items, sprints = Activity(items, sprints, period)
	run.WorkItems = len(items)
	run.Sprints = len(sprints)

	all := make([]types.ChunkInput, 0, len(items)+len(sprints))

	p.advance(ctx, run, stepWorkItems, 30)
	for i, item := range items {
		all = append(all, WorkItemSnapshot(item, run.Period, i))
	}

	p.advance(ctx, run, stepSprints, 45)
	for i, sprint := range sprints {
		all = append(all, SprintSnapshot(sprint, items, run.Period, i))
	}

	p.advance(ctx, run, stepEmbedding, 60)
	if len(all) > 0 {
		if err := p.embed(ctx, all); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Chunks are stored without vectors and stay reachable through full-text search
			p.logger.Warn("embedding failed, storing snapshots without vectors",
				zap.String("run_id", run.RunID), zap.Error(err))
			run.Errors = append(run.Errors, types.NewStatusError("embedding", err))
		}
	}

	p.advance(ctx, run, stepStoring, 85)
	if err := p.replace(ctx, run, all[:len(items)], all[len(items):]); err != nil {
		return err
	}
	run.Chunks = len(all)
	return nil
}

func (p *Preparer) embed(ctx context.Context, chunks []types.ChunkInput) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	resp, err := embedder.EmbedAll(ctx, p.embedder, texts, p.opts.BatchSize)
	if err != nil {
		return err
	}
	for i, vec := range resp.Vectors() {
		chunks[i].Embedding = vec
	}
	p.metrics.Tokens("monthly", resp.TokenCount)
	return nil
}

// replace swaps the period chunks of both source types in one transaction
func (p *Preparer) replace(ctx context.Context, run *types.PreparationStatus, itemChunks, sprintChunks []types.ChunkInput) error {
	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	sets := []struct {
		sourceType types.SourceType
		chunks     []types.ChunkInput
	}{
		{types.SourceWorkItem, itemChunks},
		{types.SourceSprint, sprintChunks},
	}
	for _, set := range sets {
		if _, err := tx.DeleteChunksBySource(ctx, run.ProjectID, set.sourceType, run.Period); err != nil {
			return fmt.Errorf("failed to delete %s chunks: %w", set.sourceType, err)
		}
		if len(set.chunks) == 0 {
			continue
		}
		if _, err := tx.InsertChunks(ctx, run.ProjectID, set.sourceType, run.Period, set.chunks); err != nil {
			return fmt.Errorf("failed to insert %s chunks: %w", set.sourceType, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if p.opts.Invalidator != nil {
		p.opts.Invalidator.InvalidateCache()
	}
	p.metrics.Chunks(string(types.SourceWorkItem), len(itemChunks))
	p.metrics.Chunks(string(types.SourceSprint), len(sprintChunks))
	return nil
}

func (p *Preparer) advance(ctx context.Context, run *types.PreparationStatus, step string, progress int) {
	run.Step = step
	run.Progress = progress
	p.report(ctx, run)
}

// report publishes the status to the cache and the durable row. A failed
// durable write is logged; pollers still see the cached status. A run that
// was replaced by a newer one only updates its own durable row.
func (p *Preparer) report(ctx context.Context, run *types.PreparationStatus) {
	run.UpdatedAt = p.now()
	if cur, ok := p.statuses.Get(run.ProjectID, run.Period); !ok || cur.RunID == run.RunID {
		p.statuses.Set(run)
	}

	// Use a fresh context so a timed-out run can still record its failure
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.UpdatePreparationRun(writeCtx, run); err != nil {
		p.logger.Warn("failed to persist preparation status",
			zap.String("run_id", run.RunID), zap.Error(err))
	}
}

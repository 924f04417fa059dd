package main

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/chunker"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/config"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/devops"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/embedder"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/logger"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/metrics"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/monthly"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/retry"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/searcher"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/server"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/storage"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/syncer"
)

const (
	embeddingTimeout = 30 * time.Second
	azureTimeout     = 30 * time.Second
	shutdownTimeout  = 30 * time.Second
)

// app holds the long-lived dependencies shared by every command
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *storage.SQLiteStorage
	emb     embedder.Embedder
	metrics *metrics.Metrics
}

// openApp loads and validates configuration, then opens the store and the
// embedding provider. Console receives log output.
func openApp(configPath string, console io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File, Console: console})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(embedderConfig(cfg))
	if err != nil {
		_ = store.Close()
		_ = log.Sync()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	log.Info("application ready",
		zap.String("version", version),
		zap.String("build_mode", storage.BuildMode),
		zap.Bool("vector_extension", storage.VectorExtensionAvailable),
		zap.String("embedding_provider", emb.Provider()),
		zap.String("database", cfg.Database.Path))

	return &app{
		cfg:     cfg,
		logger:  log,
		store:   store,
		emb:     emb,
		metrics: metrics.New(),
	}, nil
}

func (a *app) Close() {
	if err := a.emb.Close(); err != nil {
		a.logger.Warn("failed to close embedder", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close storage", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func (a *app) newSyncer() (*syncer.Syncer, error) {
	client, err := devops.NewHTTPClient(devopsConfig(a.cfg), a.logger.Named("devops"))
	if err != nil {
		return nil, err
	}
	opts := syncOptions(a.cfg)
	opts.Project = client.Project()
	return syncer.New(client, a.store, opts, a.logger.Named("sync"), a.metrics), nil
}

func (a *app) newSearchService() *searcher.Service {
	return searcher.NewService(a.store, a.emb, searcher.ServiceOptions{
		Search:    searchOptions(a.cfg),
		Chunking:  chunker.DefaultOptions(),
		BatchSize: a.cfg.Embedding.BatchSize,
	}, a.logger.Named("search"), a.metrics)
}

func (a *app) newPreparer(invalidator monthly.CacheInvalidator) *monthly.Preparer {
	statuses := monthly.NewMemoryStatusStore(a.cfg.Monthly.StatusTTL.Std(), monthly.DefaultStatusSize)
	return monthly.NewPreparer(a.store, a.emb, statuses, monthly.Options{
		StaleAfter:  a.cfg.Monthly.StaleAfter.Std(),
		BatchSize:   a.cfg.Embedding.BatchSize,
		Invalidator: invalidator,
	}, a.logger.Named("monthly"), a.metrics)
}

func (a *app) serverOptions() server.Options {
	return server.Options{
		DefaultProject: a.cfg.Azure.Project,
		RateLimit:      a.cfg.HTTP.RateLimit,
		RateBurst:      a.cfg.HTTP.RateBurst,
		AllowedOrigins: a.cfg.HTTP.AllowedOrigins,
	}
}

// waitPreparations gives detached monthly runs a bounded time to finish
func (a *app) waitPreparations(p *monthly.Preparer, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		a.logger.Warn("monthly preparations still running at exit")
	}
}

func devopsConfig(cfg *config.Config) devops.Config {
	return devops.Config{
		Organization:      cfg.Azure.Organization,
		Project:           cfg.Azure.Project,
		Team:              cfg.Azure.Team,
		PAT:               cfg.Azure.PAT,
		BaseURL:           cfg.Azure.BaseURL,
		APIVersion:        cfg.Azure.APIVersion,
		RequestsPerSecond: cfg.Azure.RequestsPerSecond,
		Burst:             cfg.Azure.Burst,
		Timeout:           azureTimeout,
		RevisionPageSize:  cfg.Sync.RevisionBatchSize,
	}
}

func embedderConfig(cfg *config.Config) embedder.Config {
	return embedder.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		BaseURL:   cfg.Embedding.BaseURL,
		Dimension: cfg.Embedding.Dimension,
		CacheSize: cfg.Embedding.CacheSize,
		Timeout:   embeddingTimeout,
	}
}

func syncOptions(cfg *config.Config) syncer.Options {
	return syncer.Options{
		Organization: cfg.Azure.Organization,
		Project:      cfg.Azure.Project,
		Team:         cfg.Azure.Team,
		BatchSize:    cfg.Azure.BatchSize,
		Retry: retry.Policy{
			MaxAttempts: cfg.Sync.RetryAttempts,
			Delay:       retry.Exponential(cfg.Sync.RetryBaseDelay.Std(), cfg.Sync.RetryMaxDelay.Std(), 2.0),
			Retryable:   retry.IsTransient,
		},
	}
}

func searchOptions(cfg *config.Config) searcher.Options {
	return searcher.Options{
		Weights: searcher.Weights{
			VectorWeight:   cfg.Search.VectorWeight,
			FullTextWeight: cfg.Search.FullTextWeight,
			RRFK:           cfg.Search.RRFK,
		},
		TopK:      cfg.Search.TopK,
		CacheSize: cfg.Search.CacheSize,
		CacheTTL:  cfg.Search.CacheTTL.Std(),
		MinScore:  cfg.Search.MinScore,
	}
}

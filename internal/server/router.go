// Package server exposes search, document ingestion, monthly preparation and
// sync triggers over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/metrics"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/syncer"
)

// Options configures the HTTP server
type Options struct {
	DefaultProject string // Used when a request omits projectId
	RateLimit      float64
	RateBurst      int
	AllowedOrigins []string
}

// Server is the gin-based HTTP surface
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	search   SearchService
	preparer Preparer
	syncer   Syncer
	metrics  *metrics.Metrics
	opts     Options
	logger   *zap.Logger

	jobs       sync.WaitGroup
	jobsCtx    context.Context
	cancelJobs context.CancelFunc
}

// New builds the engine and registers every route
func New(search SearchService, preparer Preparer, syncs Syncer, m *metrics.Metrics, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:   gin.New(),
		search:   search,
		preparer: preparer,
		syncer:   syncs,
		metrics:  m,
		opts:     opts,
		logger:   logger,
	}
	s.jobsCtx, s.cancelJobs = context.WithCancel(context.Background())

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the engine, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	s.logger.Info("starting HTTP server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, cancels background syncs and waits for
// them to return
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		s.logger.Info("shutting down HTTP server")
		err = s.httpServer.Shutdown(ctx)
	}
	s.cancelJobs()

	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

func (s *Server) setupMiddleware() {
	s.engine.Use(RecoveryMiddleware(s.logger))
	s.engine.Use(LoggingMiddleware(s.logger))
	s.engine.Use(CORSMiddleware(s.opts.AllowedOrigins))
	s.engine.Use(SecurityMiddleware())
	s.engine.Use(RateLimitMiddleware(s.opts.RateLimit, s.opts.RateBurst, s.logger))
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "ok",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	rda := s.engine.Group("/rda")
	{
		rda.POST("/search", s.handleSearch)
		rda.POST("/documents", s.handleIngest)
		rda.DELETE("/documents/:id", s.handleDeleteDocument)
		rda.GET("/stats/:projectId", s.handleStats)
	}

	month := s.engine.Group("/monthly")
	{
		month.POST("/prepare", s.handlePrepare)
		month.GET("/status/:projectId/:period", s.handlePreparationStatus)
	}

	syncs := s.engine.Group("/sync")
	{
		syncs.POST("/full", s.syncHandler(syncer.ModeFull))
		syncs.POST("/incremental", s.syncHandler(syncer.ModeIncremental))
		syncs.POST("/items/:id", s.syncHandler(syncer.ModeItem))
		syncs.POST("/iteration", s.syncHandler(syncer.ModeIteration))
		syncs.POST("/backfill", s.syncHandler(syncer.ModeBackfill))
		syncs.GET("/status/:projectId", s.handleSyncStatus)
	}

	s.engine.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "endpoint not found")
	})
	s.engine.HandleMethodNotAllowed = true
	s.engine.NoMethod(func(c *gin.Context) {
		fail(c, http.StatusMethodNotAllowed, "method not allowed")
	})
}

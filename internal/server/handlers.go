package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/searcher"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/syncer"
	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

// SearchService is the retrieval side used by the /rda routes
type SearchService interface {
	Search(ctx context.Context, req searcher.Request) ([]types.SearchResult, error)
	IngestDocument(ctx context.Context, doc searcher.Document) (*searcher.IngestResult, error)
	DeleteDocument(ctx context.Context, projectID, documentID string) (int64, error)
	Stats(ctx context.Context, projectID string) (*types.ChunkStats, error)
}

// Preparer runs monthly preparations
type Preparer interface {
	Prepare(ctx context.Context, projectID, period string) (*types.PreparationStatus, error)
	Status(ctx context.Context, projectID, period string) (*types.PreparationStatus, error)
}

// Syncer runs work item syncs
type Syncer interface {
	FullSync(ctx context.Context, projectID string) (*syncer.Result, error)
	IncrementalSync(ctx context.Context, projectID string) (*syncer.Result, error)
	SyncItem(ctx context.Context, projectID string, id int) (*syncer.Result, error)
	SyncIteration(ctx context.Context, projectID, iterationPath string) (*syncer.Result, error)
	BackfillEffort(ctx context.Context, projectID string) (*syncer.Result, error)
	CheckProject(mode syncer.Mode, projectID string) error
	Running(projectID string) bool
	LastRuns(projectID string) []syncer.RunRecord
}

type searchResponse struct {
	Results []types.SearchResult `json:"results"`
	Count   int                  `json:"count"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searcher.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	results, err := s.search.Search(c.Request.Context(), req)
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

func (s *Server) handleIngest(c *gin.Context) {
	var doc searcher.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.search.IngestDocument(c.Request.Context(), doc)
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusCreated, result)
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	projectID := c.Query("projectId")
	if projectID == "" {
		fail(c, http.StatusBadRequest, "projectId query parameter is required")
		return
	}

	n, err := s.search.DeleteDocument(c.Request.Context(), projectID, c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}
	if n == 0 {
		fail(c, http.StatusNotFound, "document not found")
		return
	}
	respond(c, http.StatusOK, gin.H{"documentId": c.Param("id"), "deleted": n})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.search.Stats(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, stats)
}

type prepareRequest struct {
	ProjectID string `json:"projectId"`
	Period    string `json:"period"`
}

func (s *Server) handlePrepare(c *gin.Context) {
	var req prepareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	projectID, period := s.project(req.ProjectID), strings.TrimSpace(req.Period)
	st, err := s.preparer.Prepare(c.Request.Context(), projectID, period)
	if err != nil {
		if code := statusOf(err); code >= http.StatusInternalServerError {
			_ = c.Error(err)
			c.JSON(code, Response{Success: false, Message: err.Error(), Data: types.Failed(projectID, period, "prepare", err)})
			return
		}
		failWith(c, err)
		return
	}
	respond(c, http.StatusAccepted, st)
}

func (s *Server) handlePreparationStatus(c *gin.Context) {
	st, err := s.preparer.Status(c.Request.Context(), c.Param("projectId"), c.Param("period"))
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, st)
}

type syncRequest struct {
	ProjectID     string `json:"projectId"`
	IterationPath string `json:"iterationPath"`
}

// syncAccepted is returned for every sync trigger
type syncAccepted struct {
	Mode          syncer.Mode `json:"mode"`
	ProjectID     string      `json:"projectId"`
	WorkItem      int         `json:"workItemId,omitempty"`
	IterationPath string      `json:"iterationPath,omitempty"`
	Accepted      time.Time   `json:"acceptedAt"`
}

func (s *Server) syncHandler(mode syncer.Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req syncRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
				return
			}
		}
		projectID := s.project(req.ProjectID)
		if err := s.syncer.CheckProject(mode, projectID); err != nil {
			failWith(c, err)
			return
		}

		accepted := syncAccepted{Mode: mode, ProjectID: projectID, Accepted: time.Now().UTC()}

		var run func(ctx context.Context) (*syncer.Result, error)
		switch mode {
		case syncer.ModeFull:
			run = func(ctx context.Context) (*syncer.Result, error) { return s.syncer.FullSync(ctx, projectID) }
		case syncer.ModeIncremental:
			run = func(ctx context.Context) (*syncer.Result, error) { return s.syncer.IncrementalSync(ctx, projectID) }
		case syncer.ModeBackfill:
			run = func(ctx context.Context) (*syncer.Result, error) { return s.syncer.BackfillEffort(ctx, projectID) }
		case syncer.ModeItem:
			id, err := strconv.Atoi(c.Param("id"))
			if err != nil || id <= 0 {
				fail(c, http.StatusBadRequest, fmt.Sprintf("invalid work item id %q", c.Param("id")))
				return
			}
			accepted.WorkItem = id
			run = func(ctx context.Context) (*syncer.Result, error) { return s.syncer.SyncItem(ctx, projectID, id) }
		case syncer.ModeIteration:
			path := strings.TrimSpace(req.IterationPath)
			if path == "" {
				failWith(c, syncer.ErrIterationPath)
				return
			}
			accepted.IterationPath = path
			run = func(ctx context.Context) (*syncer.Result, error) { return s.syncer.SyncIteration(ctx, projectID, path) }
		}

		if s.syncer.Running(projectID) {
			failWith(c, syncer.ErrSyncInProgress)
			return
		}
		s.launch(mode, projectID, run)
		respond(c, http.StatusAccepted, accepted)
	}
}

type syncStatus struct {
	ProjectID string             `json:"projectId"`
	Running   bool               `json:"running"`
	Runs      []syncer.RunRecord `json:"runs"`
}

func (s *Server) handleSyncStatus(c *gin.Context) {
	projectID := c.Param("projectId")
	respond(c, http.StatusOK, syncStatus{
		ProjectID: projectID,
		Running:   s.syncer.Running(projectID),
		Runs:      s.syncer.LastRuns(projectID),
	})
}

// launch runs a sync detached from the request; Shutdown cancels and waits for it
func (s *Server) launch(mode syncer.Mode, projectID string, run func(ctx context.Context) (*syncer.Result, error)) {
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		if _, err := run(s.jobsCtx); err != nil {
			s.logger.Error("background sync failed",
				zap.String("mode", string(mode)),
				zap.String("project", projectID),
				zap.Error(err))
		}
	}()
}

// project falls back to the configured default project
func (s *Server) project(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return s.opts.DefaultProject
}

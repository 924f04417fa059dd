package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/monthly"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/searcher"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/storage"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/syncer"
	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

// Response is the envelope of every JSON reply
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, Response{Success: false, Message: message})
}

// failWith maps a domain error to its HTTP status
func failWith(c *gin.Context, err error) {
	_ = c.Error(err)
	fail(c, statusOf(err), err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, searcher.ErrEmptyQuery),
		errors.Is(err, searcher.ErrMissingProject),
		errors.Is(err, searcher.ErrInvalidWeights),
		errors.Is(err, searcher.ErrInvalidDocument),
		errors.Is(err, monthly.ErrMissingProject),
		errors.Is(err, syncer.ErrProjectRequired),
		errors.Is(err, syncer.ErrForeignProject),
		errors.Is(err, syncer.ErrIterationPath),
		errors.Is(err, types.ErrInvalidSourceType),
		errors.Is(err, types.ErrInvalidPeriod):
		return http.StatusBadRequest
	case errors.Is(err, monthly.ErrRunNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, syncer.ErrWorkItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, syncer.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, searcher.ErrSearchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/monthly"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/searcher"
	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound      = -32001 // No preparation run for the project and period
	ErrorCodeSearchFailed  = -32002 // Both search legs failed
	ErrorCodeEmptyQuery    = -32004 // Query parameter is empty
)

const maxTopK = 100

// handleSearchChunks handles the search_chunks tool invocation
func (s *Server) handleSearchChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query := strings.TrimSpace(getStringDefault(args, "query", ""))
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	projectID, err := s.projectArg(args)
	if err != nil {
		return nil, err
	}

	topK := getIntDefault(args, "topK", 10)
	if topK < 1 || topK > maxTopK {
		return nil, newMCPError(ErrorCodeInvalidParams, "topK must be between 1 and 100", map[string]interface{}{
			"param": "topK",
			"value": topK,
		})
	}

	sourceTypes, err := getSourceTypes(args)
	if err != nil {
		return nil, err
	}

	results, err := s.search.Search(ctx, searcher.Request{
		ProjectID:   projectID,
		Query:       query,
		TopK:        topK,
		SourceTypes: sourceTypes,
		MinScore:    getFloatDefault(args, "minScore", 0),
	})
	if err != nil {
		return nil, s.toolError("search_chunks", err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":   query,
		"count":   len(results),
		"results": results,
	})), nil
}

// handlePrepareMonth handles the prepare_month tool invocation
func (s *Server) handlePrepareMonth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, period, err := s.periodArgs(request)
	if err != nil {
		return nil, err
	}

	// The run outlives this call; Prepare detaches it from ctx
	st, err := s.preparer.Prepare(ctx, projectID, period)
	if err != nil {
		mapped := s.toolError("prepare_month", err)
		var mcpErr *MCPError
		if errors.As(mapped, &mcpErr) && mcpErr.Code == ErrorCodeInternalError {
			// The caller polls statuses, so an unstartable run is reported as one
			return mcp.NewToolResultError(formatJSON(types.Failed(projectID, period, "prepare", err))), nil
		}
		return nil, mapped
	}
	return mcp.NewToolResultText(formatJSON(st)), nil
}

// handlePreparationStatus handles the preparation_status tool invocation
func (s *Server) handlePreparationStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, period, err := s.periodArgs(request)
	if err != nil {
		return nil, err
	}

	st, err := s.preparer.Status(ctx, projectID, period)
	if errors.Is(err, monthly.ErrRunNotFound) {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"prepared":  false,
			"projectId": projectID,
			"period":    period,
			"message":   "No preparation for this period. Use prepare_month to start one.",
		})), nil
	}
	if err != nil {
		return nil, s.toolError("preparation_status", err)
	}
	return mcp.NewToolResultText(formatJSON(st)), nil
}

// handleChunkStats handles the chunk_stats tool invocation
func (s *Server) handleChunkStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}
	projectID, err := s.projectArg(args)
	if err != nil {
		return nil, err
	}

	stats, err := s.search.Stats(ctx, projectID)
	if err != nil {
		return nil, s.toolError("chunk_stats", err)
	}
	return mcp.NewToolResultText(formatJSON(stats)), nil
}

func (s *Server) periodArgs(request mcp.CallToolRequest) (string, string, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return "", "", newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	projectID, err := s.projectArg(args)
	if err != nil {
		return "", "", err
	}

	period := strings.TrimSpace(getStringDefault(args, "period", ""))
	if _, err := types.ParsePeriod(period); err != nil {
		return "", "", newMCPError(ErrorCodeInvalidParams, "invalid period", map[string]interface{}{
			"param":  "period",
			"value":  period,
			"reason": err.Error(),
		})
	}
	return projectID, period, nil
}

func (s *Server) projectArg(args map[string]interface{}) (string, error) {
	projectID := strings.TrimSpace(getStringDefault(args, "projectId", s.defaultProject))
	if projectID == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "projectId parameter is required", map[string]interface{}{
			"param":  "projectId",
			"reason": "missing and no default project configured",
		})
	}
	return projectID, nil
}

// toolError maps a domain error onto an MCP error code
func (s *Server) toolError(tool string, err error) error {
	data := map[string]interface{}{"error": err.Error()}
	switch {
	case errors.Is(err, searcher.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", data)
	case errors.Is(err, searcher.ErrMissingProject),
		errors.Is(err, searcher.ErrInvalidWeights),
		errors.Is(err, monthly.ErrMissingProject),
		errors.Is(err, types.ErrInvalidSourceType),
		errors.Is(err, types.ErrInvalidPeriod):
		return newMCPError(ErrorCodeInvalidParams, "invalid parameters", data)
	case errors.Is(err, monthly.ErrRunNotFound):
		return newMCPError(ErrorCodeNotFound, "preparation not found", data)
	case errors.Is(err, searcher.ErrSearchFailed):
		s.logger.Warn("tool failed", zap.String("tool", tool), zap.Error(err))
		return newMCPError(ErrorCodeSearchFailed, "search failed", data)
	default:
		s.logger.Error("tool failed", zap.String("tool", tool), zap.Error(err))
		return newMCPError(ErrorCodeInternalError, tool+" failed", data)
	}
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a float parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}

func sourceTypeNames() []string {
	names := make([]string, len(types.AllSourceTypes))
	for i, st := range types.AllSourceTypes {
		names[i] = string(st)
	}
	return names
}

func getSourceTypes(args map[string]interface{}) ([]types.SourceType, error) {
	raw, ok := args["sourceTypes"]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "sourceTypes must be an array of strings", map[string]interface{}{
			"param": "sourceTypes",
		})
	}

	out := make([]types.SourceType, 0, len(list))
	for _, v := range list {
		name, _ := v.(string)
		st := types.SourceType(name)
		if !st.Valid() {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid source type", map[string]interface{}{
				"param":   "sourceTypes",
				"value":   v,
				"allowed": sourceTypeNames(),
			})
		}
		out = append(out, st)
	}
	return out, nil
}

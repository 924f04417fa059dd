package mcp

import (
	"context"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/searcher"
	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "azurebridge"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// SearchService is the retrieval side exposed as tools
type SearchService interface {
	Search(ctx context.Context, req searcher.Request) ([]types.SearchResult, error)
	Stats(ctx context.Context, projectID string) (*types.ChunkStats, error)
}

// Preparer runs and reports monthly preparations
type Preparer interface {
	Prepare(ctx context.Context, projectID, period string) (*types.PreparationStatus, error)
	Status(ctx context.Context, projectID, period string) (*types.PreparationStatus, error)
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp            *server.MCPServer
	search         SearchService
	preparer       Preparer
	defaultProject string
	logger         *zap.Logger
}

// NewServer creates a new MCP server instance. defaultProject is used by
// every tool call that omits projectId.
func NewServer(search SearchService, preparer Preparer, defaultProject string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		search:         search,
		preparer:       preparer,
		defaultProject: defaultProject,
		logger:         logger,
	}
	s.registerTools()
	return s
}

// Serve runs the protocol on stdin/stdout until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	return s.Listen(ctx, os.Stdin, os.Stdout)
}

// Listen runs the protocol over the given streams
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	s.logger.Info("MCP server listening on stdio", zap.String("name", ServerName))
	return stdio.Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchChunksTool(), s.handleSearchChunks)
	s.mcp.AddTool(prepareMonthTool(), s.handlePrepareMonth)
	s.mcp.AddTool(preparationStatusTool(), s.handlePreparationStatus)
	s.mcp.AddTool(chunkStatsTool(), s.handleChunkStats)
}

package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ziadkadry99/lanne/internal/logging"
	"github.com/ziadkadry99/lanne/internal/orchestrator"
	"github.com/ziadkadry99/lanne/internal/plan"
	"github.com/ziadkadry99/lanne/internal/vectordb"
)

// Version is set via ldflags at build time.
var Version = "dev"

// defaultUser owns conversations started over MCP.
const defaultUser = "mcp"

// Pipeline answers queries.
type Pipeline interface {
	Handle(ctx context.Context, q orchestrator.Query, opts ...orchestrator.Option) (*orchestrator.Result, error)
	Plan(ctx context.Context, text string) plan.Plan
}

// Options configures a Server.
type Options struct {
	// UserID owns the conversations started by MCP clients.
	UserID string
	Logger *zap.Logger
}

// Server wraps an MCP server that exposes the assistant and its knowledge
// base as tools.
type Server struct {
	pipeline Pipeline
	store    vectordb.VectorStore
	userID   string
	logger   *zap.Logger
	mcp      *server.MCPServer
}

// NewServer creates a new MCP server. store may be nil, in which case the
// knowledge-base tool reports that nothing is indexed.
func NewServer(pipeline Pipeline, store vectordb.VectorStore, opts Options) *Server {
	s := &Server{
		pipeline: pipeline,
		store:    store,
		userID:   opts.UserID,
		logger:   logging.OrNop(opts.Logger).Named("mcp"),
	}
	if s.userID == "" {
		s.userID = defaultUser
	}

	s.mcp = server.NewMCPServer(
		"lanne",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(askTool, s.handleAsk)
	s.mcp.AddTool(searchKnowledgeTool, s.handleSearchKnowledge)
	s.mcp.AddTool(planQueryTool, s.handlePlanQuery)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

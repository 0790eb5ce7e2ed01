package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/coderag/internal/app"
)

const (
	// ServerName is the MCP server name
	ServerName = "coderag"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server exposes an App's collection over MCP. It borrows the App; the
// caller closes it.
type Server struct {
	mcp *server.MCPServer
	app *app.App
	log *slog.Logger
}

// NewServer creates a new MCP server instance with all tools registered
func NewServer(a *app.App, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp: server.NewMCPServer(ServerName, ServerVersion),
		app: a,
		log: logger,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(_ context.Context) error {
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexRepositoryTool(), s.handleIndexRepository)
	s.mcp.AddTool(retrieveTool(), s.handleRetrieve)
	s.mcp.AddTool(collectionStatsTool(), s.handleCollectionStats)
	s.mcp.AddTool(deleteCollectionTool(), s.handleDeleteCollection)
}

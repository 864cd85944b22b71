package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/preauto/preauto/pkg/automation"
	"github.com/preauto/preauto/pkg/rules/schema"
)

// Server wraps the MCP server with preauto's automation functionality
type Server struct {
	mcpServer *server.MCPServer
	engine    *automation.Engine
	validator *schema.Validator
}

// NewServer creates a new MCP server for automation control
func NewServer(engine *automation.Engine, validator *schema.Validator) *Server {
	s := &Server{
		engine:    engine,
		validator: validator,
	}

	// Create MCP server
	s.mcpServer = server.NewMCPServer(
		"preauto",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	// Register all tools
	s.registerTools()

	return s
}

// ServeStdio starts the MCP server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

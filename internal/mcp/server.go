package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"custquery/internal/service"
	"custquery/internal/source"
)

// Server is the MCP server for custquery. It exposes the customer queries,
// the mapping inverter and the saved reports as tools, plus read-only
// resources and prompts.
type Server struct {
	mcp     *server.MCPServer
	reports *service.ReportService
	logger  *zap.Logger

	// Used when a tool call names no source.
	defaultSourceType   string
	defaultSourceConfig source.Config
}

// Deps holds the dependencies passed from the CLI to the MCP server.
type Deps struct {
	Name                string
	Version             string
	Reports             *service.ReportService // optional; report tools are skipped when nil
	DefaultSourceType   string
	DefaultSourceConfig map[string]any
	Logger              *zap.Logger
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Name == "" {
		deps.Name = "custquery"
	}
	if deps.Version == "" {
		deps.Version = "1.0.0"
	}

	s := &Server{
		reports:             deps.Reports,
		logger:              deps.Logger.Named("mcp"),
		defaultSourceType:   deps.DefaultSourceType,
		defaultSourceConfig: source.Config(deps.DefaultSourceConfig),
	}
	s.mcp = server.NewMCPServer(
		deps.Name,
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
	)

	s.registerCustomerTools()
	s.registerMappingTools()
	if s.reports != nil {
		s.registerReportTools()
	}
	s.registerResources()
	s.registerPrompts()
	return s
}

// MCPServer returns the underlying server, for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves MCP on stdin/stdout until ctx is cancelled or stdin closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("starting stdio server")
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	return stdio.Listen(ctx, stdinReader(), stdoutWriter())
}

// ── Helpers ────────────────────────────────────────────────

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// toolError reports a failed call to the client as a tool result rather than
// a protocol error, so the model can read and react to it.
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

func boolPtr(v bool) *bool { return &v }

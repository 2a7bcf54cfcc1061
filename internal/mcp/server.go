package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/itrack/internal/models"
	"github.com/joescharf/itrack/internal/store"
)

// Server exposes the issue store as MCP tools.
type Server struct {
	store   store.Store
	logger  *slog.Logger
	version string
}

// NewServer creates the MCP server wrapper. A nil logger falls back to slog.Default.
func NewServer(s store.Store, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: s, logger: logger, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("itrack", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.deleteIssueTool())
	srv.AddTool(s.reportsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// optString returns the string argument key, or nil when it is absent or null.
func optString(args map[string]any, key string) *string {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	str, ok := v.(string)
	if !ok {
		str = fmt.Sprint(v)
	}
	return &str
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// storeError logs the underlying failure and returns an opaque tool error.
func (s *Server) storeError(op string, err error) (*mcp.CallToolResult, error) {
	s.logger.Error("store operation failed", "op", op, "error", err)
	return mcp.NewToolResultError("failed to " + op), nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// issue_list
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issue_list",
		mcp.WithDescription("List issues, newest first. A numeric search matches the issue id exactly; any other search matches subject substrings."),
		mcp.WithString("search", mcp.Description("Issue id or subject text")),
		mcp.WithString("status", mcp.Description("Exact status, e.g. Open, Reopened, Closed")),
		mcp.WithString("category", mcp.Description("Exact category")),
		mcp.WithString("from_date", mcp.Description("Earliest creation date, YYYY-MM-DD (inclusive)")),
		mcp.WithString("to_date", mcp.Description("Latest creation date, YYYY-MM-DD (inclusive)")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.IssueListFilter{
		Search:   request.GetString("search", ""),
		Status:   request.GetString("status", ""),
		Category: request.GetString("category", ""),
		FromDate: request.GetString("from_date", ""),
		ToDate:   request.GetString("to_date", ""),
	}
	issues, err := s.store.ListIssues(ctx, filter)
	if err != nil {
		return s.storeError("list issues", err)
	}
	return jsonResult(issues)
}

// issue_create
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issue_create",
		mcp.WithDescription("Create an issue. Omitted fields are stored as null."),
		mcp.WithString("subject", mcp.Description("Short summary")),
		mcp.WithString("category", mcp.Description("Category label")),
		mcp.WithString("status", mcp.Description("Initial status, usually Open")),
		mcp.WithString("severity", mcp.Description("Severity label")),
		mcp.WithString("reporter", mcp.Description("Who reported it")),
		mcp.WithString("assignee", mcp.Description("Who owns it")),
		mcp.WithString("description", mcp.Description("Longer description")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	issue := &models.Issue{
		Subject:     optString(args, "subject"),
		Category:    optString(args, "category"),
		Status:      optString(args, "status"),
		Severity:    optString(args, "severity"),
		Reporter:    optString(args, "reporter"),
		Assignee:    optString(args, "assignee"),
		Description: optString(args, "description"),
	}
	if err := s.store.CreateIssue(ctx, issue); err != nil {
		return s.storeError("create issue", err)
	}
	return jsonResult(issue)
}

// issue_update
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issue_update",
		mcp.WithDescription("Overwrite an issue's status, category, severity, assignee, description and close_reason. Omitted fields are cleared. close_reason is kept only when status is Closed."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Issue id")),
		mcp.WithString("status", mcp.Description("New status")),
		mcp.WithString("category", mcp.Description("Category label")),
		mcp.WithString("severity", mcp.Description("Severity label")),
		mcp.WithString("assignee", mcp.Description("Who owns it")),
		mcp.WithString("description", mcp.Description("Longer description")),
		mcp.WithString("close_reason", mcp.Description("Why it was closed")),
	)
	return tool, s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	args := request.GetArguments()
	update := &models.IssueUpdate{
		Status:      optString(args, "status"),
		Category:    optString(args, "category"),
		Severity:    optString(args, "severity"),
		Assignee:    optString(args, "assignee"),
		Description: optString(args, "description"),
		CloseReason: optString(args, "close_reason"),
	}
	n, err := s.store.UpdateIssue(ctx, int64(id), update)
	if err != nil {
		return s.storeError("update issue", err)
	}
	return jsonResult(map[string]any{"updated": n})
}

// issue_delete
func (s *Server) deleteIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issue_delete",
		mcp.WithDescription("Permanently delete an issue. Deleting a missing id is not an error."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Issue id")),
	)
	return tool, s.handleDeleteIssue
}

func (s *Server) handleDeleteIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	n, err := s.store.DeleteIssue(ctx, int64(id))
	if err != nil {
		return s.storeError("delete issue", err)
	}
	return jsonResult(map[string]any{"deleted": n})
}

// issue_reports
func (s *Server) reportsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issue_reports",
		mcp.WithDescription("Issue counts grouped by status, category, severity, assignee and close_reason (closed issues only)."),
	)
	return tool, s.handleReports
}

func (s *Server) handleReports(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reports, err := s.store.Reports(ctx)
	if err != nil {
		return s.storeError("load reports", err)
	}
	return jsonResult(reports)
}

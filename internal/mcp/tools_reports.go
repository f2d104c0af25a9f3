package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerReportTools() {
	s.mcp.AddTool(mcp.NewTool("list_reports",
		mcp.WithDescription("List saved customer reports with their trigger and last run status"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListReports)

	s.mcp.AddTool(mcp.NewTool("run_report",
		mcp.WithDescription("Run a saved report now and return its result. The run is recorded in the report's history."),
		mcp.WithString("report", mcp.Description("Report ID or name"), mcp.Required()),
	), s.handleRunReport)

	s.mcp.AddTool(mcp.NewTool("report_history",
		mcp.WithDescription("Recent runs of a saved report, newest first"),
		mcp.WithString("report", mcp.Description("Report ID or name"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleReportHistory)
}

func (s *Server) handleListReports(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reports, err := s.reports.ListReports()
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return jsonResult(reports)
}

func (s *Server) handleRunReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref := req.GetString("report", "")
	if ref == "" {
		return toolError(fmt.Errorf("report is required")), nil
	}
	r, err := s.reports.ResolveReport(ref)
	if err != nil {
		return toolError(err), nil
	}
	result, err := s.reports.RunReport(ctx, r.ID)
	if err != nil {
		if result == nil {
			return toolError(fmt.Errorf("run report: %w", err)), nil
		}
		res, jerr := jsonResult(result)
		if jerr != nil {
			return nil, jerr
		}
		res.IsError = true
		return res, nil
	}
	return jsonResult(result)
}

func (s *Server) handleReportHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := s.reports.ResolveReport(req.GetString("report", ""))
	if err != nil {
		return toolError(err), nil
	}
	logs, err := s.reports.ListRunLogs(r.ID)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	return jsonResult(logs)
}

package mcpserver

import (
	"context"
	"fmt"
	"iter"

	"github.com/mark3labs/mcp-go/mcp"

	"custquery/internal/customers"
	"custquery/internal/domain"
	"custquery/internal/source"
)

// sourceParams are shared by every tool that reads customers.
func sourceParams() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("sourceType", mcp.Description("Record source type (use list_sources). Defaults to the configured source")),
		mcp.WithString("sourceConfig", mcp.Description(`Source configuration as a JSON object, e.g. {"filePath":"/data/customers.csv"}`)),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	}
}

func (s *Server) registerCustomerTools() {
	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List available record source types with their configuration fields"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListSources)

	s.mcp.AddTool(mcp.NewTool("search_customers",
		append([]mcp.ToolOption{
			mcp.WithDescription("Find customers matching every given condition. Omitted conditions are ignored; with none, all customers are returned."),
			mcp.WithString("firstName", mcp.Description("Exact first name")),
			mcp.WithString("lastName", mcp.Description("Exact last name")),
			mcp.WithNumber("minOrderCount", mcp.Description("Only customers with more than this many orders")),
			mcp.WithNumber("maxOrderCount", mcp.Description("Only customers with fewer than this many orders")),
		}, sourceParams()...)...,
	), s.handleSearchCustomers)

	s.mcp.AddTool(mcp.NewTool("high_volume_names",
		append([]mcp.ToolOption{
			mcp.WithDescription("Full names of customers with more orders than the threshold, in source order"),
			mcp.WithNumber("threshold", mcp.Description("Order count threshold (default 100)"), mcp.DefaultNumber(customers.HighVolumeThreshold)),
			mcp.WithString("form", mcp.Description("Query form to evaluate with"), mcp.Enum("stages", "fluent", "comprehension"), mcp.DefaultString("stages")),
		}, sourceParams()...)...,
	), s.handleHighVolumeNames)

	s.mcp.AddTool(mcp.NewTool("awesome_customers",
		append([]mcp.ToolOption{
			mcp.WithDescription("Customers with more than 500 orders, ordered by first name"),
		}, sourceParams()...)...,
	), s.handleAwesomeCustomers)
}

func (s *Server) handleListSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(source.List())
}

func (s *Server) handleSearchCustomers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := s.resolveSource(req)
	if err != nil {
		return toolError(err), nil
	}
	found, err := customers.Search(ctx, src, criteriaArg(req))
	if err != nil {
		return toolError(fmt.Errorf("search customers: %w", err)), nil
	}
	return jsonResult(map[string]any{"count": len(found), "customers": found})
}

func (s *Server) handleHighVolumeNames(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	run, err := customers.HighVolumeForm(req.GetString("form", "stages"))
	if err != nil {
		return toolError(err), nil
	}
	threshold := req.GetInt("threshold", customers.HighVolumeThreshold)

	src, err := s.resolveSource(req)
	if err != nil {
		return toolError(err), nil
	}
	names, err := source.Query(ctx, src, func(records iter.Seq[domain.Customer]) ([]string, error) {
		return run(records, threshold)
	})
	if err != nil {
		return toolError(fmt.Errorf("high volume names: %w", err)), nil
	}
	return jsonResult(names)
}

func (s *Server) handleAwesomeCustomers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := s.resolveSource(req)
	if err != nil {
		return toolError(err), nil
	}
	found, err := customers.AwesomeCustomers(ctx, src)
	if err != nil {
		return toolError(fmt.Errorf("awesome customers: %w", err)), nil
	}
	return jsonResult(found)
}

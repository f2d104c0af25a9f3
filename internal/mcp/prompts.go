package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("customer_overview",
		mcp.WithPromptDescription("Summarise the customer base of a record source: top customers, low-activity customers, and shared last names"),
		mcp.WithArgument("sourceType",
			mcp.ArgumentDescription("Record source type (memory, json_file, csv_file, database)"),
		),
	), s.handleCustomerOverviewPrompt)
}

func (s *Server) handleCustomerOverviewPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	sourceType := req.Params.Arguments["sourceType"]
	if sourceType == "" {
		sourceType = "the configured default source"
	}
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Customer overview for %s", sourceType),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Give an overview of the customers in %s. Follow these steps:

1. Use awesome_customers to list the customers with more than 500 orders
2. Use high_volume_names to list everyone above 100 orders
3. Use search_customers with maxOrderCount 5 to find the least active customers
4. Point out any last name that appears more than once in the results

Keep the summary short and use tables where they help.`, sourceType),
				},
			},
		},
	}, nil
}

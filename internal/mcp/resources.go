package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"custquery/internal/source"
)

const (
	sourcesURI = "custquery://sources"
	reportsURI = "custquery://reports"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(
		sourcesURI,
		"Record Source Types",
		mcp.WithResourceDescription("Source types and the configuration fields each one takes"),
		mcp.WithMIMEType("application/json"),
	), s.handleSourcesResource)

	if s.reports != nil {
		s.mcp.AddResource(mcp.NewResource(
			reportsURI,
			"Saved Reports",
			mcp.WithMIMEType("application/json"),
		), s.handleReportsResource)
	}
}

func (s *Server) handleSourcesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(sourcesURI, source.List())
}

func (s *Server) handleReportsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	reports, err := s.reports.ListReports()
	if err != nil {
		return nil, err
	}

	type reportSummary struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Trigger    string `json:"trigger"`
		LastStatus string `json:"lastStatus,omitempty"`
	}
	summaries := make([]reportSummary, 0, len(reports))
	for _, r := range reports {
		summaries = append(summaries, reportSummary{
			ID:         r.ID,
			Name:       r.Name,
			Trigger:    string(r.TriggerType),
			LastStatus: r.LastStatus,
		})
	}
	return jsonResource(reportsURI, summaries)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

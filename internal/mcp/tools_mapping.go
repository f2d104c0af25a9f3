package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"custquery/internal/collections"
)

func (s *Server) registerMappingTools() {
	s.mcp.AddTool(mcp.NewTool("invert_mapping",
		mcp.WithDescription("Swap keys and values of a JSON object. Values must be strings, numbers, booleans or null. When several keys share a value, the last key wins; the collisions are listed in the result."),
		mcp.WithString("mapping", mcp.Description(`JSON object to invert, e.g. {"Bar":600,"Whatever":3}`), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleInvertMapping)
}

func (s *Server) handleInvertMapping(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var raw []byte
	switch v := req.GetArguments()["mapping"].(type) {
	case string:
		raw = []byte(v)
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return toolError(err), nil
		}
		raw = b
	default:
		return toolError(fmt.Errorf("mapping is required")), nil
	}

	inverted, err := collections.InvertJSON(raw)
	if err != nil {
		return toolError(fmt.Errorf("invert mapping: %w", err)), nil
	}
	collisions, err := collections.JSONCollisions(raw)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"inverted":   json.RawMessage(inverted),
		"collisions": collisions,
	})
}

package mcpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/mcp"

	"custquery/internal/domain"
	"custquery/internal/source"
)

func stdinReader() io.Reader  { return os.Stdin }
func stdoutWriter() io.Writer { return os.Stdout }

// objectArg reads an argument that may be sent either as a JSON object or as
// a string holding JSON.
func objectArg(args map[string]any, key string) (map[string]any, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("parse %s: %w", key, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: expected a JSON object, got %T", key, v)
	}
}

// resolveSource builds the source named by sourceType / sourceConfig, or the
// server default when the call names none.
func (s *Server) resolveSource(req mcp.CallToolRequest) (source.Source, error) {
	args := req.GetArguments()
	typ := req.GetString("sourceType", "")
	cfg, err := objectArg(args, "sourceConfig")
	if err != nil {
		return nil, err
	}
	if typ == "" {
		if s.defaultSourceType == "" {
			return nil, fmt.Errorf("sourceType is required (no default source configured)")
		}
		typ = s.defaultSourceType
		if cfg == nil {
			cfg = s.defaultSourceConfig
		}
	}
	return source.New(typ, source.Config(cfg), s.logger)
}

// criteriaArg reads the optional search criteria of a tool call. A name
// argument that is present adds a condition, even when it is empty.
func criteriaArg(req mcp.CallToolRequest) domain.Criteria {
	var c domain.Criteria
	args := req.GetArguments()
	if _, ok := args["firstName"]; ok {
		v := req.GetString("firstName", "")
		c.FirstName = &v
	}
	if _, ok := args["lastName"]; ok {
		v := req.GetString("lastName", "")
		c.LastName = &v
	}
	c.MinOrderCount = req.GetInt("minOrderCount", 0)
	c.MaxOrderCount = req.GetInt("maxOrderCount", 0)
	return c
}

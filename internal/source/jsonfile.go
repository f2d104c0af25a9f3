package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"custquery/internal/domain"
)

// ── JSON File Source ────────────────────────────────────────
// Streams customers from a JSON array in a local file. The array is the
// document root unless dataPath points into nested objects.

type jsonFileFactory struct{}

func init() { Register(jsonFileFactory{}) }

func (jsonFileFactory) Spec() Spec {
	return Spec{
		Type:  "json_file",
		Label: "JSON File",
		ConfigFields: []ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path to the JSON file"},
			{Key: "dataPath", Label: "Data Path", Type: "string", Required: false, Help: "Dot-separated path to the array (e.g., 'data.customers'). Leave empty if root is an array."},
		},
	}
}

func (jsonFileFactory) New(cfg Config, logger *zap.Logger) (Source, error) {
	path := cfg.getString("filePath", "")
	if path == "" {
		return nil, fmt.Errorf("filePath is required")
	}
	var dataPath []string
	if p := cfg.getString("dataPath", ""); p != "" {
		dataPath = strings.Split(p, ".")
	}
	return &jsonFileSource{path: path, dataPath: dataPath, logger: logger}, nil
}

type jsonFileSource struct {
	path     string
	dataPath []string
	logger   *zap.Logger
}

func (s *jsonFileSource) Open(ctx context.Context) (Handle, error) {
	if s == nil {
		return nil, errNilReceiver
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	dec := json.NewDecoder(f)
	dec.UseNumber()

	if err := seekArray(dec, s.dataPath); err != nil {
		f.Close()
		return nil, fmt.Errorf("parse json %s: %w", s.path, err)
	}
	s.logger.Debug("json file opened", zap.String("path", s.path))

	return &streamHandle{
		next: func(context.Context) (domain.Customer, bool, error) {
			if !dec.More() {
				return domain.Customer{}, false, nil
			}
			var fields map[string]any
			if err := dec.Decode(&fields); err != nil {
				return domain.Customer{}, false, fmt.Errorf("decode: %w", err)
			}
			c, err := customerFromFields(fields)
			return c, err == nil, err
		},
		close:  f.Close,
		logger: s.logger,
	}, nil
}

// seekArray advances dec past the opening bracket of the array found by
// following path through nested objects.
func seekArray(dec *json.Decoder, path []string) error {
	for _, key := range path {
		if err := expectDelim(dec, '{'); err != nil {
			return err
		}
		found := false
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return err
			}
			if tok == key {
				found = true
				break
			}
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return err
			}
		}
		if !found {
			return fmt.Errorf("data path key %q not found", key)
		}
	}
	return expectDelim(dec, '[')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"custquery/internal/domain"
)

// ── CSV File Source ─────────────────────────────────────────
// Streams customers from a local CSV file. With a header row, columns are
// matched by name; without one they are first name, last name, order count.

type csvFileFactory struct{}

func init() { Register(csvFileFactory{}) }

func (csvFileFactory) Spec() Spec {
	return Spec{
		Type:  "csv_file",
		Label: "CSV File",
		ConfigFields: []ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path to the CSV file"},
			{Key: "delimiter", Label: "Delimiter", Type: "string", Required: false, Default: ",", Help: "Column delimiter (default: comma)"},
			{Key: "hasHeader", Label: "Has Header", Type: "select", Required: false, Options: []string{"true", "false"}, Default: "true", Help: "Whether the first row contains column names"},
		},
	}
}

func (csvFileFactory) New(cfg Config, logger *zap.Logger) (Source, error) {
	path := cfg.getString("filePath", "")
	if path == "" {
		return nil, fmt.Errorf("filePath is required")
	}
	delim := ','
	if d := cfg.getString("delimiter", ""); d != "" {
		delim = []rune(d)[0]
	}
	return &csvFileSource{
		path:      path,
		delimiter: delim,
		hasHeader: cfg.getBool("hasHeader", true),
		logger:    logger,
	}, nil
}

type csvFileSource struct {
	path      string
	delimiter rune
	hasHeader bool
	logger    *zap.Logger
}

func (s *csvFileSource) Open(ctx context.Context) (Handle, error) {
	if s == nil {
		return nil, errNilReceiver
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	reader := csv.NewReader(f)
	reader.Comma = s.delimiter
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	columns := positionalColumns
	if s.hasHeader {
		header, err := reader.Read()
		if err != nil && !errors.Is(err, io.EOF) {
			f.Close()
			return nil, fmt.Errorf("read csv header: %w", err)
		}
		if err == nil {
			if columns, err = mapColumns(header); err != nil {
				f.Close()
				return nil, fmt.Errorf("csv header: %w", err)
			}
		}
	}
	s.logger.Debug("csv file opened", zap.String("path", s.path), zap.Bool("header", s.hasHeader))

	row := make([]any, 0, 3)
	return &streamHandle{
		next: func(context.Context) (domain.Customer, bool, error) {
			fields, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return domain.Customer{}, false, nil
			}
			if err != nil {
				return domain.Customer{}, false, fmt.Errorf("parse csv: %w", err)
			}
			row = row[:0]
			for _, v := range fields {
				row = append(row, v)
			}
			c, err := columns.customer(row)
			return c, err == nil, err
		},
		close:  f.Close,
		logger: s.logger,
	}, nil
}

package source

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"go.uber.org/zap"

	"custquery/internal/domain"
)

// ── Memory Source ───────────────────────────────────────────
// Serves a fixed list of customers, either given in code or listed under
// "records" in the config.

type memoryFactory struct{}

func init() { Register(memoryFactory{}) }

func (memoryFactory) Spec() Spec {
	return Spec{
		Type:  "memory",
		Label: "In-memory list",
		ConfigFields: []ConfigField{
			{Key: "records", Label: "Records", Type: "textarea", Required: false, Help: "List of {firstName, lastName, totalOrdersPlaced} objects"},
		},
	}
}

func (memoryFactory) New(cfg Config, _ *zap.Logger) (Source, error) {
	var records []domain.Customer
	switch raw := cfg["records"].(type) {
	case nil:
	case []domain.Customer:
		records = raw
	case []any:
		records = make([]domain.Customer, 0, len(raw))
		for i, item := range raw {
			fields, ok := asFields(item)
			if !ok {
				return nil, fmt.Errorf("records[%d]: expected an object, got %T", i, item)
			}
			c, err := customerFromFields(fields)
			if err != nil {
				return nil, fmt.Errorf("records[%d]: %w", i, err)
			}
			records = append(records, c)
		}
	default:
		return nil, fmt.Errorf("records: expected a list, got %T", raw)
	}
	return Slice(records), nil
}

func asFields(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

// Slice returns a source over a copy of records. A nil slice is an empty
// source. Its handles can be ranged over any number of times.
func Slice(records []domain.Customer) Source {
	return memorySource{records: slices.Clone(records)}
}

type memorySource struct {
	records []domain.Customer
}

func (s memorySource) Open(context.Context) (Handle, error) {
	return &memoryHandle{records: s.records}, nil
}

// memoryHandle can be ranged over repeatedly; a cancelled range is recorded
// so that Err reports the cut-short read.
type memoryHandle struct {
	records []domain.Customer
	err     error
}

func (h *memoryHandle) Records(ctx context.Context) iter.Seq[domain.Customer] {
	return func(yield func(domain.Customer) bool) {
		for _, c := range h.records {
			if err := ctx.Err(); err != nil {
				h.err = err
				return
			}
			if !yield(c) {
				return
			}
		}
	}
}

func (h *memoryHandle) Err() error   { return h.err }
func (h *memoryHandle) Close() error { return nil }

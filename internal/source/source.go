package source

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"custquery/internal/domain"
	"custquery/internal/query"
)

// ── Source ──────────────────────────────────────────────────
// A Source produces customer records. Every read goes through a Handle that
// is opened and closed in one scope (see With and Query).
// Implementations live in this package, one file per source type.

// Config is an opaque configuration map parsed per source type.
type Config map[string]any

// ConfigField describes a single configuration input for a source type.
type ConfigField struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // "string" | "number" | "select" | "password" | "file" | "textarea"
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"` // for "select" type
	Default  string   `json:"default,omitempty"`
	Help     string   `json:"help,omitempty"`
}

// Spec describes a source type and its config fields.
type Spec struct {
	Type         string        `json:"type"`
	Label        string        `json:"label"`
	ConfigFields []ConfigField `json:"configFields"`
}

// Handle is an open record source.
type Handle interface {
	// Records returns the customer sequence. Streaming handles can be
	// ranged over once; a read failure ends the sequence early and is
	// reported by Err.
	Records(ctx context.Context) iter.Seq[domain.Customer]

	// Err returns the first error hit while reading records.
	Err() error

	// Close releases the underlying file, cursor or connection.
	Close() error
}

// Source opens handles.
//
// A typed nil (for example a nil pointer of a source type) is not a nil
// Source and is not caught by With; implementations in this package return
// ErrInvalidInput from Open on a nil receiver.
type Source interface {
	Open(ctx context.Context) (Handle, error)
}

// Pinger is implemented by sources that can verify they are reachable
// without reading records.
type Pinger interface {
	Ping(ctx context.Context) error
}

var errNilReceiver = fmt.Errorf("%w: nil record source", query.ErrInvalidInput)

// Factory builds sources of one type from a Config.
type Factory interface {
	Spec() Spec
	New(cfg Config, logger *zap.Logger) (Source, error)
}

// ── Registry ───────────────────────────────────────────────
// Compile-time registration via init() in each source file.

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register registers a factory by its spec type.
func Register(f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[f.Spec().Type] = f
}

// Lookup returns the factory for typ.
func Lookup(typ string) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %q", typ)
	}
	return f, nil
}

// New builds a source of the given type.
func New(typ string, cfg Config, logger *zap.Logger) (Source, error) {
	f, err := Lookup(typ)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	src, err := f.New(cfg, logger.With(zap.String("source", typ)))
	if err != nil {
		return nil, fmt.Errorf("%s source: %w", typ, err)
	}
	return src, nil
}

// List returns the specs of all registered source types, sorted by type.
func List() []Spec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]Spec, 0, len(registry))
	for _, f := range registry {
		specs = append(specs, f.Spec())
	}
	slices.SortFunc(specs, func(a, b Spec) int { return strings.Compare(a.Type, b.Type) })
	return specs
}

// ── Scoped access ──────────────────────────────────────────

// With opens src, passes the handle to fn and closes it on every exit path.
// A Close error is joined to the error returned by fn.
func With(ctx context.Context, src Source, fn func(Handle) error) (err error) {
	if src == nil {
		return fmt.Errorf("%w: nil record source", query.ErrInvalidInput)
	}
	if fn == nil {
		return fmt.Errorf("%w: nil handle function", query.ErrInvalidInput)
	}
	h, err := src.Open(ctx)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close source: %w", cerr))
		}
	}()
	return fn(h)
}

// Check verifies that src is usable: sources implementing Pinger are
// pinged, others are opened and closed again.
func Check(ctx context.Context, src Source) error {
	if p, ok := src.(Pinger); ok {
		return p.Ping(ctx)
	}
	return With(ctx, src, func(Handle) error { return nil })
}

// Query runs fn over the records of src inside a With scope. If reading
// fails, the result of fn is discarded and the zero value is returned with
// the error.
func Query[T any](ctx context.Context, src Source, fn func(iter.Seq[domain.Customer]) (T, error)) (T, error) {
	var out T
	if fn == nil {
		return out, fmt.Errorf("%w: nil query function", query.ErrInvalidInput)
	}
	err := With(ctx, src, func(h Handle) error {
		v, err := fn(h.Records(ctx))
		if err != nil {
			return err
		}
		if err := h.Err(); err != nil {
			return fmt.Errorf("read records: %w", err)
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// ── Stream handle ──────────────────────────────────────────

// errConsumed is reported when a one-shot handle is ranged over twice.
var errConsumed = errors.New("record stream already consumed")

// streamHandle adapts a pull function into a one-shot Handle.
type streamHandle struct {
	next   func(ctx context.Context) (domain.Customer, bool, error)
	close  func() error
	logger *zap.Logger

	used bool
	read int
	err  error
}

func (h *streamHandle) Records(ctx context.Context) iter.Seq[domain.Customer] {
	return func(yield func(domain.Customer) bool) {
		if h.used {
			h.fail(errConsumed)
			return
		}
		h.used = true
		for {
			if err := ctx.Err(); err != nil {
				h.fail(err)
				return
			}
			c, ok, err := h.next(ctx)
			if err != nil {
				h.fail(fmt.Errorf("record %d: %w", h.read+1, err))
				return
			}
			if !ok {
				h.logger.Debug("stream exhausted", zap.Int("records", h.read))
				return
			}
			h.read++
			if !yield(c) {
				return
			}
		}
	}
}

func (h *streamHandle) fail(err error) {
	if h.err == nil {
		h.err = err
	}
}

func (h *streamHandle) Err() error { return h.err }

func (h *streamHandle) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

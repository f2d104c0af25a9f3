package source

import (
	"context"
	"errors"
	"iter"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"custquery/internal/domain"
	"custquery/internal/query"
)

var sample = []domain.Customer{
	{FirstName: "Foo", LastName: "Bar", TotalOrdersPlaced: 600},
	{FirstName: "Pete", LastName: "Whatever", TotalOrdersPlaced: 3},
}

// fakeSource records Close calls and can fail on open, read or close.
type fakeSource struct {
	records  []domain.Customer
	openErr  error
	readErr  error
	closeErr error
	closed   int
}

func (s *fakeSource) Open(context.Context) (Handle, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	i := 0
	return &streamHandle{
		next: func(context.Context) (domain.Customer, bool, error) {
			if i == len(s.records) {
				if s.readErr != nil {
					return domain.Customer{}, false, s.readErr
				}
				return domain.Customer{}, false, nil
			}
			i++
			return s.records[i-1], true, nil
		},
		close: func() error {
			s.closed++
			return s.closeErr
		},
		logger: zap.NewNop(),
	}, nil
}

func collectAll(seq iter.Seq[domain.Customer]) ([]domain.Customer, error) {
	return slices.Collect(seq), nil
}

func TestWith_ClosesOnEveryPath(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		src := &fakeSource{records: sample}
		require.NoError(t, With(ctx, src, func(Handle) error { return nil }))
		assert.Equal(t, 1, src.closed)
	})

	t.Run("callback error", func(t *testing.T) {
		src := &fakeSource{records: sample}
		boom := errors.New("boom")
		err := With(ctx, src, func(Handle) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, src.closed)
	})

	t.Run("panic", func(t *testing.T) {
		src := &fakeSource{records: sample}
		assert.Panics(t, func() {
			_ = With(ctx, src, func(Handle) error { panic("bad") })
		})
		assert.Equal(t, 1, src.closed)
	})

	t.Run("close error joined", func(t *testing.T) {
		closeErr := errors.New("close failed")
		boom := errors.New("boom")
		src := &fakeSource{records: sample, closeErr: closeErr}
		err := With(ctx, src, func(Handle) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, closeErr)
	})

	t.Run("open error", func(t *testing.T) {
		openErr := errors.New("no such file")
		src := &fakeSource{openErr: openErr}
		called := false
		err := With(ctx, src, func(Handle) error { called = true; return nil })
		assert.ErrorIs(t, err, openErr)
		assert.False(t, called)
		assert.Zero(t, src.closed)
	})
}

func TestWith_NilSource(t *testing.T) {
	err := With(context.Background(), nil, func(Handle) error { return nil })
	assert.ErrorIs(t, err, query.ErrInvalidInput)

	_, err = Query(context.Background(), nil, collectAll)
	assert.ErrorIs(t, err, query.ErrInvalidInput)
}

func TestWith_TypedNilSource(t *testing.T) {
	var jsonSrc *jsonFileSource
	err := With(context.Background(), jsonSrc, func(Handle) error { return nil })
	assert.ErrorIs(t, err, query.ErrInvalidInput)

	var csvSrc *csvFileSource
	_, err = Query(context.Background(), csvSrc, collectAll)
	assert.ErrorIs(t, err, query.ErrInvalidInput)

	var dbSrc *databaseSource
	_, err = Query(context.Background(), dbSrc, collectAll)
	assert.ErrorIs(t, err, query.ErrInvalidInput)
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, Check(ctx, Slice(sample)))

	src := &fakeSource{records: sample}
	require.NoError(t, Check(ctx, src))
	assert.Equal(t, 1, src.closed)

	openErr := errors.New("no such file")
	assert.ErrorIs(t, Check(ctx, &fakeSource{openErr: openErr}), openErr)
	assert.ErrorIs(t, Check(ctx, nil), query.ErrInvalidInput)
}

func TestQuery_ReturnsResult(t *testing.T) {
	src := &fakeSource{records: sample}
	got, err := Query(context.Background(), src, collectAll)
	require.NoError(t, err)
	assert.Equal(t, sample, got)
	assert.Equal(t, 1, src.closed)
}

func TestQuery_ReadErrorDiscardsPartialResult(t *testing.T) {
	readErr := errors.New("cursor lost")
	src := &fakeSource{records: sample, readErr: readErr}
	got, err := Query(context.Background(), src, collectAll)
	assert.ErrorIs(t, err, readErr)
	assert.Nil(t, got)
	assert.Equal(t, 1, src.closed)
}

func TestStreamHandle_OneShot(t *testing.T) {
	src := &fakeSource{records: sample}
	h, err := src.Open(context.Background())
	require.NoError(t, err)
	defer h.Close()

	assert.Len(t, slices.Collect(h.Records(context.Background())), 2)
	assert.Empty(t, slices.Collect(h.Records(context.Background())))
	assert.ErrorIs(t, h.Err(), errConsumed)
}

func TestStreamHandle_ContextCancelled(t *testing.T) {
	src := &fakeSource{records: sample}
	h, err := src.Open(context.Background())
	require.NoError(t, err)
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, slices.Collect(h.Records(ctx)))
	assert.ErrorIs(t, h.Err(), context.Canceled)
}

func TestQuery_SliceCancelledMidStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got, err := Query(ctx, Slice(sample), func(records iter.Seq[domain.Customer]) ([]domain.Customer, error) {
		var out []domain.Customer
		for c := range records {
			out = append(out, c)
			cancel()
		}
		return out, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)

	// A fresh handle over the same slice reads everything.
	got, err = Query(context.Background(), Slice(sample), collectAll)
	require.NoError(t, err)
	assert.Equal(t, sample, got)
}

func TestRegistry(t *testing.T) {
	var types []string
	for _, s := range List() {
		types = append(types, s.Type)
	}
	assert.Equal(t, []string{"csv_file", "database", "json_file", "memory"}, types)

	_, err := Lookup("ftp")
	assert.ErrorContains(t, err, `unknown source type: "ftp"`)

	_, err = New("json_file", Config{}, nil)
	assert.ErrorContains(t, err, "filePath is required")
}

// Package query is a small declarative pipeline over record sequences:
// filter, then order, then project.
//
// Every stage takes an iter.Seq so records may be produced lazily. Filter and
// Project stay lazy; Order is the only stage that buffers the full sequence.
// The same query can be written as separate stage calls, as a fluent chain
// (From/Where/OrderBy/Select) or as a Comprehension value; all three run the
// same stage functions and therefore agree.
package query

import (
	"cmp"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/samber/lo"
)

// ErrInvalidInput reports a programmer error: a nil record source, a nil
// predicate, or a nil key or projection function.
var ErrInvalidInput = errors.New("invalid input")

// Predicate is a side-effect free test over a record.
type Predicate[T any] func(T) bool

// Direction selects the sort direction of Order.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// ParseDirection accepts "asc" / "desc" (empty means ascending).
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	default:
		return Ascending, fmt.Errorf("%w: unknown sort direction %q", ErrInvalidInput, s)
	}
}

// All combines predicates with logical AND. With no predicates every record
// matches.
func All[T any](preds ...Predicate[T]) Predicate[T] {
	return func(r T) bool {
		return lo.EveryBy(preds, func(p Predicate[T]) bool { return p(r) })
	}
}

func checkPredicates[T any](preds []Predicate[T]) error {
	for i, p := range preds {
		if p == nil {
			return fmt.Errorf("%w: predicate %d is nil", ErrInvalidInput, i)
		}
	}
	return nil
}

// Filter keeps the records for which every predicate holds, in input order.
func Filter[T any](src iter.Seq[T], preds ...Predicate[T]) (iter.Seq[T], error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil record source", ErrInvalidInput)
	}
	if err := checkPredicates(preds); err != nil {
		return nil, err
	}
	if len(preds) == 0 {
		return src, nil
	}

	match := All(preds...)
	return func(yield func(T) bool) {
		for r := range src {
			if match(r) && !yield(r) {
				return
			}
		}
	}, nil
}

// By builds a comparator from a key function.
func By[T any, K cmp.Ordered](key func(T) K) func(a, b T) int {
	return func(a, b T) int {
		return cmp.Compare(key(a), key(b))
	}
}

// Reverse inverts a comparator. Ties stay ties, so a stable sort with a
// reversed comparator still keeps equal records in input order.
func Reverse[T any](compare func(a, b T) int) func(a, b T) int {
	return func(a, b T) int {
		return compare(b, a)
	}
}

// Order collects src and sorts it stably by key.
func Order[T any, K cmp.Ordered](src iter.Seq[T], key func(T) K, dir Direction) ([]T, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: nil sort key", ErrInvalidInput)
	}
	compare := By(key)
	if dir == Descending {
		compare = Reverse(compare)
	}
	return OrderFunc(src, compare)
}

// OrderFunc collects src and sorts it stably with compare.
func OrderFunc[T any](src iter.Seq[T], compare func(a, b T) int) ([]T, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil record source", ErrInvalidInput)
	}
	if compare == nil {
		return nil, fmt.Errorf("%w: nil comparator", ErrInvalidInput)
	}
	records := slices.Collect(src)
	slices.SortStableFunc(records, compare)
	return records, nil
}

// Project maps every record through fn, keeping order and length.
func Project[T, U any](src iter.Seq[T], fn func(T) U) (iter.Seq[U], error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil record source", ErrInvalidInput)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: nil projection", ErrInvalidInput)
	}
	return func(yield func(U) bool) {
		for r := range src {
			if !yield(fn(r)) {
				return
			}
		}
	}, nil
}

// Identity is the projection that returns its record unchanged.
func Identity[T any](r T) T { return r }

// Collect drains a sequence into a slice. The result is never nil, so an
// empty query yields an empty slice.
func Collect[T any](seq iter.Seq[T]) []T {
	out := slices.Collect(seq)
	if out == nil {
		out = []T{}
	}
	return out
}

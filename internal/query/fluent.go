package query

import (
	"fmt"
	"iter"
	"slices"
)

// Query is a fluent, immutable query over a record sequence. Each method
// returns a new Query; the receiver is left unchanged, so a base query can be
// shared and refined.
//
// Filters run before ordering regardless of call order. Because filtering
// preserves order this gives the same result as applying the calls in
// sequence.
type Query[T any] struct {
	src   iter.Seq[T]
	preds []Predicate[T]
	order []func(a, b T) int
}

// From starts a query over src.
func From[T any](src iter.Seq[T]) *Query[T] {
	return &Query[T]{src: src}
}

// FromSlice starts a query over the records of s.
func FromSlice[T any](s []T) *Query[T] {
	return From(slices.Values(s))
}

// Where adds a predicate. All predicates must hold for a record to be kept.
func (q *Query[T]) Where(p Predicate[T]) *Query[T] {
	next := q.clone()
	next.preds = append(next.preds, p)
	return next
}

// OrderBy replaces any ordering with compare.
func (q *Query[T]) OrderBy(compare func(a, b T) int) *Query[T] {
	next := q.clone()
	next.order = []func(a, b T) int{compare}
	return next
}

// ThenBy adds a tie-breaker to the current ordering.
func (q *Query[T]) ThenBy(compare func(a, b T) int) *Query[T] {
	next := q.clone()
	next.order = append(next.order, compare)
	return next
}

func (q *Query[T]) clone() *Query[T] {
	return &Query[T]{
		src:   q.src,
		preds: slices.Clone(q.preds),
		order: slices.Clone(q.order),
	}
}

// Seq runs the filter and order stages and returns the resulting sequence.
// Without an ordering the result stays lazy.
func (q *Query[T]) Seq() (iter.Seq[T], error) {
	filtered, err := Filter(q.src, q.preds...)
	if err != nil {
		return nil, err
	}
	if len(q.order) == 0 {
		return filtered, nil
	}

	compare, err := chain(q.order)
	if err != nil {
		return nil, err
	}
	sorted, err := OrderFunc(filtered, compare)
	if err != nil {
		return nil, err
	}
	return slices.Values(sorted), nil
}

// ToSlice runs the query and collects the records.
func (q *Query[T]) ToSlice() ([]T, error) {
	seq, err := q.Seq()
	if err != nil {
		return nil, err
	}
	return Collect(seq), nil
}

// Select runs q and projects every resulting record through fn. It is a
// function rather than a method because Go methods cannot introduce the
// output type parameter.
func Select[T, U any](q *Query[T], fn func(T) U) ([]U, error) {
	seq, err := q.Seq()
	if err != nil {
		return nil, err
	}
	projected, err := Project(seq, fn)
	if err != nil {
		return nil, err
	}
	return Collect(projected), nil
}

func chain[T any](comparators []func(a, b T) int) (func(a, b T) int, error) {
	for i, c := range comparators {
		if c == nil {
			return nil, fmt.Errorf("%w: comparator %d is nil", ErrInvalidInput, i)
		}
	}
	if len(comparators) == 1 {
		return comparators[0], nil
	}
	return func(a, b T) int {
		for _, c := range comparators {
			if r := c(a, b); r != 0 {
				return r
			}
		}
		return 0
	}, nil
}

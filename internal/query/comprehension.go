package query

import (
	"iter"
	"slices"
)

// Comprehension is the declarative form of a query:
//
//	from r in From
//	where Where[0] && Where[1] ...
//	orderby OrderBy
//	select Select(r)
//
// OrderBy is optional. Select is required; use Identity to return records.
type Comprehension[T, U any] struct {
	From    iter.Seq[T]
	Where   []Predicate[T]
	OrderBy func(a, b T) int
	Select  func(T) U
}

// Run evaluates the comprehension with the same stages as the fluent form.
func (c Comprehension[T, U]) Run() ([]U, error) {
	seq, err := Filter(c.From, c.Where...)
	if err != nil {
		return nil, err
	}
	if c.OrderBy != nil {
		sorted, err := OrderFunc(seq, c.OrderBy)
		if err != nil {
			return nil, err
		}
		seq = slices.Values(sorted)
	}
	projected, err := Project(seq, c.Select)
	if err != nil {
		return nil, err
	}
	return Collect(projected), nil
}

package query

import "fmt"

// Conditions collects predicates for a query whose filter is assembled at
// runtime from optional criteria. Each added predicate is one AND term; a
// criterion that is absent simply adds nothing.
type Conditions[T any] struct {
	preds []Predicate[T]
}

// Add appends a term.
func (c *Conditions[T]) Add(p Predicate[T]) *Conditions[T] {
	c.preds = append(c.preds, p)
	return c
}

// AddIf appends p only when present is true.
func (c *Conditions[T]) AddIf(present bool, p Predicate[T]) *Conditions[T] {
	if present {
		c.preds = append(c.preds, p)
	}
	return c
}

// Len returns the number of terms.
func (c *Conditions[T]) Len() int { return len(c.preds) }

// Predicates returns a copy of the terms, for use with Filter or Comprehension.
func (c *Conditions[T]) Predicates() []Predicate[T] {
	out := make([]Predicate[T], len(c.preds))
	copy(out, c.preds)
	return out
}

// Build combines the terms into one predicate. An empty set matches every
// record. A nil term makes the set malformed.
func (c *Conditions[T]) Build() (Predicate[T], error) {
	if err := checkPredicates(c.preds); err != nil {
		return nil, fmt.Errorf("build conditions: %w", err)
	}
	return All(c.Predicates()...), nil
}

// Package customers holds the customer queries built on the query pipeline:
// the fixed reports (high volume, awesome, cheapest), the dynamic search
// and the saved-report runner.
package customers

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"

	"custquery/internal/collections"
	"custquery/internal/domain"
	"custquery/internal/query"
	"custquery/internal/source"
)

// Order-count thresholds of the fixed reports.
const (
	HighVolumeThreshold = 100
	AwesomeThreshold    = 500
	CheapThreshold      = 5
)

// ── Predicates and keys ────────────────────────────────────

// MoreOrdersThan matches customers with strictly more than n orders.
func MoreOrdersThan(n int) query.Predicate[domain.Customer] {
	return func(c domain.Customer) bool { return c.TotalOrdersPlaced > n }
}

// FewerOrdersThan matches customers with strictly fewer than n orders.
func FewerOrdersThan(n int) query.Predicate[domain.Customer] {
	return func(c domain.Customer) bool { return c.TotalOrdersPlaced < n }
}

// FirstNameIs matches customers whose first name equals name.
func FirstNameIs(name string) query.Predicate[domain.Customer] {
	return func(c domain.Customer) bool { return c.FirstName == name }
}

// LastNameIs matches customers whose last name equals name.
func LastNameIs(name string) query.Predicate[domain.Customer] {
	return func(c domain.Customer) bool { return c.LastName == name }
}

// FullName projects a customer to "First Last".
func FullName(c domain.Customer) string { return c.FullName() }

var (
	ByFirstName   = query.By(func(c domain.Customer) string { return c.FirstName })
	ByLastName    = query.By(func(c domain.Customer) string { return c.LastName })
	ByOrderCount  = query.By(func(c domain.Customer) int { return c.TotalOrdersPlaced })
	orderingsByID = map[string]func(a, b domain.Customer) int{
		"firstname":         ByFirstName,
		"lastname":          ByLastName,
		"totalordersplaced": ByOrderCount,
		"orders":            ByOrderCount,
	}
)

// Ordering returns the comparator for a field name such as "firstName",
// "last_name" or "totalOrdersPlaced", reversed for Descending. An empty
// field means no ordering and returns nil.
func Ordering(field string, dir query.Direction) (func(a, b domain.Customer) int, error) {
	if field == "" {
		return nil, nil
	}
	key := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(field))
	compare, ok := orderingsByID[key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown order field %q", query.ErrInvalidInput, field)
	}
	if dir == query.Descending {
		compare = query.Reverse(compare)
	}
	return compare, nil
}

// ── High volume names, in the three query forms ────────────

// HighVolumeNames returns the full names of customers with more than
// threshold orders, in input order, using separate stage calls.
func HighVolumeNames(records iter.Seq[domain.Customer], threshold int) ([]string, error) {
	filtered, err := query.Filter(records, MoreOrdersThan(threshold))
	if err != nil {
		return nil, err
	}
	names, err := query.Project(filtered, FullName)
	if err != nil {
		return nil, err
	}
	return query.Collect(names), nil
}

// HighVolumeNamesFluent is HighVolumeNames written as a fluent chain.
func HighVolumeNamesFluent(records iter.Seq[domain.Customer], threshold int) ([]string, error) {
	return query.Select(query.From(records).Where(MoreOrdersThan(threshold)), FullName)
}

// HighVolumeNamesComprehension is HighVolumeNames written as a comprehension.
func HighVolumeNamesComprehension(records iter.Seq[domain.Customer], threshold int) ([]string, error) {
	return query.Comprehension[domain.Customer, string]{
		From:   records,
		Where:  []query.Predicate[domain.Customer]{MoreOrdersThan(threshold)},
		Select: FullName,
	}.Run()
}

// HighVolumeForms lists the accepted names of HighVolumeForm.
var HighVolumeForms = []string{"stages", "fluent", "comprehension"}

// HighVolumeForm returns the HighVolumeNames variant called name. An empty
// name selects the stage form.
func HighVolumeForm(name string) (func(iter.Seq[domain.Customer], int) ([]string, error), error) {
	switch name {
	case "stages", "":
		return HighVolumeNames, nil
	case "fluent":
		return HighVolumeNamesFluent, nil
	case "comprehension":
		return HighVolumeNamesComprehension, nil
	}
	return nil, fmt.Errorf("%w: unknown query form %q (valid: %s)", query.ErrInvalidInput, name, strings.Join(HighVolumeForms, ", "))
}

// ── Source-backed reports ──────────────────────────────────

// AwesomeCustomers returns the customers of src with more than 500 orders,
// ordered by first name.
func AwesomeCustomers(ctx context.Context, src source.Source) ([]domain.Customer, error) {
	return source.Query(ctx, src, func(records iter.Seq[domain.Customer]) ([]domain.Customer, error) {
		filtered, err := query.Filter(records, MoreOrdersThan(AwesomeThreshold))
		if err != nil {
			return nil, err
		}
		return query.Order(filtered, func(c domain.Customer) string { return c.FirstName }, query.Ascending)
	})
}

// Cheapest returns the customers of src with fewer than 5 orders, in source
// order.
func Cheapest(ctx context.Context, src source.Source) ([]domain.Customer, error) {
	return source.Query(ctx, src, func(records iter.Seq[domain.Customer]) ([]domain.Customer, error) {
		return query.From(records).Where(FewerOrdersThan(CheapThreshold)).ToSlice()
	})
}

// OrdersByLastName maps each last name in src to its order count. Two
// customers sharing a last name fail with collections.ErrDuplicateKey.
func OrdersByLastName(ctx context.Context, src source.Source) (map[string]int, error) {
	return source.Query(ctx, src, func(records iter.Seq[domain.Customer]) (map[string]int, error) {
		return collections.ToMap(slices.Collect(records),
			func(c domain.Customer) string { return c.LastName },
			func(c domain.Customer) int { return c.TotalOrdersPlaced },
		)
	})
}

// ── Dynamic search ─────────────────────────────────────────

// Conditions returns one AND term per criterion that is set.
func Conditions(c domain.Criteria) *query.Conditions[domain.Customer] {
	conds := &query.Conditions[domain.Customer]{}
	if c.FirstName != nil {
		conds.Add(FirstNameIs(*c.FirstName))
	}
	if c.LastName != nil {
		conds.Add(LastNameIs(*c.LastName))
	}
	conds.AddIf(c.MinOrderCount > 0, MoreOrdersThan(c.MinOrderCount))
	conds.AddIf(c.MaxOrderCount > 0, FewerOrdersThan(c.MaxOrderCount))
	return conds
}

// BuildFilter combines the criteria into one predicate. Empty criteria
// match every customer.
func BuildFilter(c domain.Criteria) (query.Predicate[domain.Customer], error) {
	return Conditions(c).Build()
}

// Search returns the customers of src matching c, in source order.
func Search(ctx context.Context, src source.Source, c domain.Criteria) ([]domain.Customer, error) {
	match, err := BuildFilter(c)
	if err != nil {
		return nil, err
	}
	return source.Query(ctx, src, func(records iter.Seq[domain.Customer]) ([]domain.Customer, error) {
		return query.From(records).Where(match).ToSlice()
	})
}

package customers_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custquery/internal/collections"
	"custquery/internal/customers"
	"custquery/internal/domain"
	"custquery/internal/query"
	"custquery/internal/source"
)

var sample = []domain.Customer{
	{FirstName: "Foo", LastName: "Bar", TotalOrdersPlaced: 600},
	{FirstName: "Pete", LastName: "Whatever", TotalOrdersPlaced: 3},
}

func ptr(s string) *string { return &s }

func TestHighVolumeNames_AllFormsAgree(t *testing.T) {
	forms := map[string]func(records []domain.Customer, threshold int) ([]string, error){
		"stages": func(r []domain.Customer, n int) ([]string, error) {
			return customers.HighVolumeNames(slices.Values(r), n)
		},
		"fluent": func(r []domain.Customer, n int) ([]string, error) {
			return customers.HighVolumeNamesFluent(slices.Values(r), n)
		},
		"comprehension": func(r []domain.Customer, n int) ([]string, error) {
			return customers.HighVolumeNamesComprehension(slices.Values(r), n)
		},
	}

	rng := rand.New(rand.NewPCG(7, 11))
	random := make([]domain.Customer, 200)
	for i := range random {
		random[i] = domain.Customer{
			FirstName:         string(rune('A' + rng.IntN(26))),
			LastName:          string(rune('a' + rng.IntN(26))),
			TotalOrdersPlaced: rng.IntN(1000),
		}
	}
	want, err := customers.HighVolumeNames(slices.Values(random), customers.HighVolumeThreshold)
	require.NoError(t, err)

	for name, form := range forms {
		t.Run(name, func(t *testing.T) {
			got, err := form(sample, customers.HighVolumeThreshold)
			require.NoError(t, err)
			assert.Equal(t, []string{"Foo Bar"}, got)

			got, err = form(random, customers.HighVolumeThreshold)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			got, err = form(nil, customers.HighVolumeThreshold)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestHighVolumeNames_NilSequence(t *testing.T) {
	_, err := customers.HighVolumeNames(nil, 100)
	assert.ErrorIs(t, err, query.ErrInvalidInput)
	_, err = customers.HighVolumeNamesFluent(nil, 100)
	assert.ErrorIs(t, err, query.ErrInvalidInput)
	_, err = customers.HighVolumeNamesComprehension(nil, 100)
	assert.ErrorIs(t, err, query.ErrInvalidInput)
}

func TestAwesomeCustomers(t *testing.T) {
	got, err := customers.AwesomeCustomers(context.Background(), source.Slice(sample))
	require.NoError(t, err)
	assert.Equal(t, []domain.Customer{{FirstName: "Foo", LastName: "Bar", TotalOrdersPlaced: 600}}, got)

	many := []domain.Customer{
		{FirstName: "Zed", LastName: "One", TotalOrdersPlaced: 700},
		{FirstName: "Amy", LastName: "Two", TotalOrdersPlaced: 501},
		{FirstName: "Zed", LastName: "Three", TotalOrdersPlaced: 900},
		{FirstName: "Bob", LastName: "Four", TotalOrdersPlaced: 500},
	}
	got, err = customers.AwesomeCustomers(context.Background(), source.Slice(many))
	require.NoError(t, err)
	assert.Equal(t, []domain.Customer{many[1], many[0], many[2]}, got)

	_, err = customers.AwesomeCustomers(context.Background(), nil)
	assert.ErrorIs(t, err, query.ErrInvalidInput)
}

func TestCheapest(t *testing.T) {
	got, err := customers.Cheapest(context.Background(), source.Slice(sample))
	require.NoError(t, err)
	assert.Equal(t, sample[1:], got)

	got, err = customers.Cheapest(context.Background(), source.Slice(nil))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOrdersByLastName(t *testing.T) {
	got, err := customers.OrdersByLastName(context.Background(), source.Slice(sample))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Bar": 600, "Whatever": 3}, got)

	dup := append(slices.Clone(sample), domain.Customer{FirstName: "Baz", LastName: "Bar", TotalOrdersPlaced: 1})
	got, err = customers.OrdersByLastName(context.Background(), source.Slice(dup))
	assert.ErrorIs(t, err, collections.ErrDuplicateKey)
	assert.Nil(t, got)
}

func TestBuildFilter(t *testing.T) {
	cases := map[string]struct {
		criteria domain.Criteria
		want     []domain.Customer
	}{
		"empty matches all":     {domain.Criteria{}, sample},
		"first name":            {domain.Criteria{FirstName: ptr("Pete")}, sample[1:]},
		"supplied name is used": {domain.Criteria{FirstName: ptr("Foo")}, sample[:1]},
		"last name":             {domain.Criteria{LastName: ptr("Bar")}, sample[:1]},
		"min orders":            {domain.Criteria{MinOrderCount: 100}, sample[:1]},
		"max orders":            {domain.Criteria{MaxOrderCount: 5}, sample[1:]},
		"name and min orders":   {domain.Criteria{FirstName: ptr("Pete"), MinOrderCount: 1}, sample[1:]},
		"conflicting terms":     {domain.Criteria{FirstName: ptr("Foo"), MaxOrderCount: 5}, nil},
		"unknown name":          {domain.Criteria{FirstName: ptr("Nobody")}, nil},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			match, err := customers.BuildFilter(tc.criteria)
			require.NoError(t, err)

			var got []domain.Customer
			for _, c := range sample {
				if match(c) {
					got = append(got, c)
				}
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConditions_TermCount(t *testing.T) {
	assert.Equal(t, 0, customers.Conditions(domain.Criteria{}).Len())
	assert.Equal(t, 2, customers.Conditions(domain.Criteria{FirstName: ptr("Foo"), MinOrderCount: 3}).Len())
	assert.Equal(t, 4, customers.Conditions(domain.Criteria{
		FirstName: ptr("Foo"), LastName: ptr("Bar"), MinOrderCount: 1, MaxOrderCount: 9,
	}).Len())
}

func TestSearch(t *testing.T) {
	got, err := customers.Search(context.Background(), source.Slice(sample), domain.Criteria{FirstName: ptr("Pete")})
	require.NoError(t, err)
	assert.Equal(t, sample[1:], got)

	_, err = customers.Search(context.Background(), nil, domain.Criteria{})
	assert.True(t, errors.Is(err, query.ErrInvalidInput))
}

func TestOrdering(t *testing.T) {
	compare, err := customers.Ordering("total_orders_placed", query.Descending)
	require.NoError(t, err)
	sorted, err := query.OrderFunc(slices.Values(sample[:]), compare)
	require.NoError(t, err)
	assert.Equal(t, sample, sorted)

	compare, err = customers.Ordering("", query.Ascending)
	require.NoError(t, err)
	assert.Nil(t, compare)

	_, err = customers.Ordering("email", query.Ascending)
	assert.ErrorIs(t, err, query.ErrInvalidInput)
}

func TestHighVolumeForm(t *testing.T) {
	for _, name := range append([]string{""}, customers.HighVolumeForms...) {
		run, err := customers.HighVolumeForm(name)
		require.NoError(t, err, name)
		got, err := run(slices.Values(sample), customers.HighVolumeThreshold)
		require.NoError(t, err)
		assert.Equal(t, []string{"Foo Bar"}, got)
	}

	_, err := customers.HighVolumeForm("sql")
	assert.ErrorIs(t, err, query.ErrInvalidInput)
}

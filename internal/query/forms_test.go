package query_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custquery/internal/domain"
	"custquery/internal/query"
)

func TestForms_HighVolumeNamesAgree(t *testing.T) {
	// Stage by stage.
	filtered, err := query.Filter(slices.Values(sample), moreThan(100))
	require.NoError(t, err)
	projected, err := query.Project(filtered, domain.Customer.FullName)
	require.NoError(t, err)
	stages := query.Collect(projected)

	// Fluent chain.
	chain, err := query.Select(query.FromSlice(sample).Where(moreThan(100)), domain.Customer.FullName)
	require.NoError(t, err)

	// Comprehension.
	comp, err := query.Comprehension[domain.Customer, string]{
		From:   slices.Values(sample),
		Where:  []query.Predicate[domain.Customer]{moreThan(100)},
		Select: domain.Customer.FullName,
	}.Run()
	require.NoError(t, err)

	assert.Equal(t, []string{"Foo Bar"}, stages)
	assert.Equal(t, stages, chain)
	assert.Equal(t, stages, comp)
}

func TestForms_AgreeOnRandomInput(t *testing.T) {
	for seed := uint64(1); seed <= 15; seed++ {
		in := randomCustomers(seed, 40)

		chain, err := query.FromSlice(in).
			Where(moreThan(3)).
			OrderBy(query.By(firstName)).
			ToSlice()
		require.NoError(t, err)

		comp, err := query.Comprehension[domain.Customer, domain.Customer]{
			From:    slices.Values(in),
			Where:   []query.Predicate[domain.Customer]{moreThan(3)},
			OrderBy: query.By(firstName),
			Select:  query.Identity[domain.Customer],
		}.Run()
		require.NoError(t, err)

		filtered, err := query.Filter(slices.Values(in), moreThan(3))
		require.NoError(t, err)
		stages, err := query.Order(filtered, firstName, query.Ascending)
		require.NoError(t, err)

		assert.Equal(t, stages, chain, "seed %d", seed)
		assert.Equal(t, stages, comp, "seed %d", seed)
	}
}

func TestFluent_AwesomeCustomersScenario(t *testing.T) {
	got, err := query.FromSlice(sample).
		Where(moreThan(500)).
		OrderBy(query.By(firstName)).
		ToSlice()
	require.NoError(t, err)
	assert.Equal(t, []domain.Customer{{FirstName: "Foo", LastName: "Bar", TotalOrdersPlaced: 600}}, got)
}

func TestFluent_IsImmutable(t *testing.T) {
	base := query.FromSlice(sample)
	big := base.Where(moreThan(500))
	small := base.Where(func(c domain.Customer) bool { return c.TotalOrdersPlaced < 5 })

	all, err := base.ToSlice()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	b, err := big.ToSlice()
	require.NoError(t, err)
	assert.Equal(t, "Foo", b[0].FirstName)

	s, err := small.ToSlice()
	require.NoError(t, err)
	assert.Equal(t, "Pete", s[0].FirstName)
}

func TestFluent_ThenBy(t *testing.T) {
	in := []domain.Customer{
		{FirstName: "Ann", LastName: "Z", TotalOrdersPlaced: 1},
		{FirstName: "Bob", LastName: "A", TotalOrdersPlaced: 1},
		{FirstName: "Ann", LastName: "B", TotalOrdersPlaced: 2},
	}
	got, err := query.Select(
		query.FromSlice(in).
			OrderBy(query.Reverse(query.By(orders))).
			ThenBy(query.By(firstName)),
		domain.Customer.FullName,
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann B", "Ann Z", "Bob A"}, got)
}

func TestFluent_NilSource(t *testing.T) {
	_, err := query.From[domain.Customer](nil).Where(moreThan(1)).ToSlice()
	assert.ErrorIs(t, err, query.ErrInvalidInput)

	_, err = query.FromSlice(sample).OrderBy(nil).ToSlice()
	assert.ErrorIs(t, err, query.ErrInvalidInput)
}

func TestComprehension_RequiresSelect(t *testing.T) {
	_, err := query.Comprehension[domain.Customer, string]{From: slices.Values(sample)}.Run()
	assert.ErrorIs(t, err, query.ErrInvalidInput)
}

func TestConditions(t *testing.T) {
	name := "Pete"

	var c query.Conditions[domain.Customer]
	c.AddIf(true, func(r domain.Customer) bool { return r.FirstName == name }).
		AddIf(false, moreThan(1000))
	require.Equal(t, 1, c.Len())

	match, err := c.Build()
	require.NoError(t, err)
	assert.False(t, match(sample[0]))
	assert.True(t, match(sample[1]))

	var empty query.Conditions[domain.Customer]
	all, err := empty.Build()
	require.NoError(t, err)
	assert.True(t, all(sample[0]))
	assert.True(t, all(sample[1]))

	var broken query.Conditions[domain.Customer]
	broken.Add(nil)
	_, err = broken.Build()
	assert.ErrorIs(t, err, query.ErrInvalidInput)
}

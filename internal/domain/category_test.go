package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

func TestMapCategory(t *testing.T) {
	rq := require.New(t)

	testCases := []struct {
		name  string
		input string
		want  domain.Category
	}{
		{name: "exact", input: "electronics", want: domain.CategoryElectronics},
		{name: "exact mixed case", input: "  Kitchen ", want: domain.CategoryKitchen},
		{name: "plural enum", input: "Toys", want: domain.CategoryToys},
		{name: "alias", input: "Laptops", want: domain.CategoryComputers},
		{name: "alias with spaces", input: "Cell Phones", want: domain.CategoryPhones},
		{name: "substring", input: "Consumer Electronics > TVs", want: domain.CategoryElectronics},
		{name: "substring tie-break by declaration order", input: "Home & Kitchen", want: domain.CategoryHome},
		{name: "alias substring", input: "Men's Clothing", want: domain.CategoryFashion},
		{name: "unknown", input: "zzz-unknown", want: domain.CategoryOther},
		{name: "empty", input: "", want: domain.CategoryOther},
		{name: "punctuation only", input: "&&//--", want: domain.CategoryOther},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(*testing.T) {
			rq.Equal(tc.want, domain.MapCategory(tc.input))
		})
	}
}

func TestMapCategoryAlwaysInEnumeration(t *testing.T) {
	rq := require.New(t)

	inputs := []string{
		"", " ", "\x00", "🙂", "other", "OTHER", "home-garden", "a&b/c,d",
		"gaming laptops", "sports & outdoors", "日本語", "electronicsss",
	}
	for _, in := range inputs {
		rq.NotPanics(func() {
			rq.True(domain.MapCategory(in).Valid(), "input %q", in)
		})
	}
}

func TestParseCategory(t *testing.T) {
	rq := require.New(t)

	c, err := domain.ParseCategory("Fashion")
	rq.NoError(err)
	rq.Equal(domain.CategoryFashion, c)

	_, err = domain.ParseCategory("laptops")
	rq.ErrorIs(err, domain.ErrInvalidCategory)
}

package classify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gastronom/catalog-crawler/internal/catalog"
)

func newTestClassifier() *Classifier {
	return New(Config{
		CategorySegments: []string{"/gotovaya-eda/", "/kulinariya/"},
		AllowKeywords:    []string{"салат", "суп", "котлета", "филе"},
		DenyKeywords:     []string{"корм", "салатник"},
	})
}

func TestAcceptURLSegmentShortCircuitsKeywords(t *testing.T) {
	t.Parallel()

	c := newTestClassifier()

	// The name matches a deny keyword, but the URL already proves the
	// category, so the keyword checks never run.
	p := catalog.Product{
		Name: "Салатник керамический",
		URL:  "https://shop.example.ru/gotovaya-eda/salatnik.html",
	}
	require.True(t, c.Accept(p))
}

func TestAcceptKeywordFallback(t *testing.T) {
	t.Parallel()

	c := newTestClassifier()

	cases := []struct {
		name    string
		product catalog.Product
		want    bool
	}{
		{
			name: "allow keyword matches",
			product: catalog.Product{
				Name: "Куриное филе охлажденное",
				URL:  "https://shop.example.ru/goods/item-1042.html",
			},
			want: true,
		},
		{
			name: "allow match case-insensitive",
			product: catalog.Product{
				Name: "СУП куриный с лапшой",
				URL:  "https://shop.example.ru/goods/item-17.html",
			},
			want: true,
		},
		{
			name: "no allow keyword",
			product: catalog.Product{
				Name: "Сковорода чугунная",
				URL:  "https://shop.example.ru/goods/item-99.html",
			},
			want: false,
		},
		{
			name: "deny keyword overrides allow",
			product: catalog.Product{
				Name: "Салатник стеклянный",
				URL:  "https://shop.example.ru/goods/item-55.html",
			},
			want: false,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, c.Accept(tc.product))
		})
	}
}

func TestAcceptEmptyLists(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	require.False(t, c.Accept(catalog.Product{
		Name: "Салат Оливье",
		URL:  "https://shop.example.ru/goods/olivie.html",
	}))
}

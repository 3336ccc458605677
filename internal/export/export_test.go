package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gastronom/catalog-crawler/internal/catalog"
)

func sampleProduct() catalog.Product {
	return catalog.Product{
		ID:          "olivie-1042",
		Name:        "Салат Оливье с курицей",
		Price:       "249",
		Category:    "/catalog/gotovaya-eda",
		URL:         "https://shop.example.ru/goods/olivie-1042.html",
		PhotoURL:    "https://shop.example.ru/upload/products/olivie.jpg",
		Composition: "Состав: картофель, курица, горошек, майонез",
		Tags:        []string{"салат", "готовая еда"},
		Weight:      "180",
		Energy:      "210",
		Protein:     "12.5",
		Fat:         "9.1",
		Carbs:       "7.8",
	}
}

func TestCSVWriterRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "products.csv")
	w, err := NewCSVWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Store(context.Background(), sampleProduct()))
	require.NoError(t, w.Store(context.Background(), catalog.Product{ID: "sup-17", Name: "Суп куриный"}))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, csvHeader, rows[0])
	require.Equal(t, "olivie-1042", rows[1][0])
	require.Equal(t, "Салат Оливье с курицей", rows[1][1])
	require.Equal(t, "салат;готовая еда", rows[1][7])
	require.Equal(t, "7.8", rows[1][12])
	require.Equal(t, "Суп куриный", rows[2][1])
}

func TestJSONLWriterRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "products.jsonl")
	w, err := NewJSONLWriter(path)
	require.NoError(t, err)

	in := sampleProduct()
	require.NoError(t, w.Store(context.Background(), in))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var out catalog.Product
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &out))
	require.Equal(t, in, out)
}

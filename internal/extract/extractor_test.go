package extract

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gastronom/catalog-crawler/internal/catalog"
)

type fakeFetcher struct {
	mu        sync.Mutex
	calls     int
	responses []catalog.FetchResponse
	err       error
}

func (f *fakeFetcher) Fetch(_ context.Context, _, _ string, _ catalog.FetchOptions) (catalog.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return catalog.FetchResponse{}, f.err
	}
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return f.responses[idx], nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func htmlResponse(url, body string) catalog.FetchResponse {
	return catalog.FetchResponse{URL: url, StatusCode: http.StatusOK, Body: []byte(body)}
}

const detailPage = `
<html><head>
<meta name="keywords" content="салат, готовая еда">
<script type="application/ld+json">
{"@type":"Product","nutrition":{"@type":"NutritionInformation","calories":"210 kcal","proteinContent":"12.5 g"}}
</script>
</head><body>
<h1>Салат Оливье с курицей</h1>
<div class="product-price">249 руб</div>
<img src="/upload/products/olivie.jpg" alt="Салат Оливье">
<p>Состав: картофель, курица, горошек, майонез</p>
<table>
<tr><td>Жиры</td><td>9,1</td></tr>
<tr><td>Углеводы</td><td>7,8</td></tr>
</table>
<p>Вес порции: 180 г</p>
</body></html>`

func newTestExtractor(f catalog.Fetcher) *Extractor {
	return New(Config{RetryBudget: 2, RetryBackoff: time.Millisecond}, f, zap.NewNop())
}

func TestExtractAssemblesFullRecord(t *testing.T) {
	t.Parallel()

	pageURL := "https://shop.example.ru/goods/olivie-1042.html"
	fetcher := &fakeFetcher{responses: []catalog.FetchResponse{htmlResponse(pageURL, detailPage)}}

	product, err := newTestExtractor(fetcher).Extract(context.Background(), pageURL)
	require.NoError(t, err)
	require.NotNil(t, product)

	require.Equal(t, "olivie-1042", product.ID)
	require.Equal(t, pageURL, product.URL)
	require.Equal(t, "Салат Оливье с курицей", product.Name)
	require.Equal(t, "249", product.Price)
	require.Equal(t, "https://shop.example.ru/upload/products/olivie.jpg", product.PhotoURL)
	require.Equal(t, "Состав: картофель, курица, горошек, майонез", product.Composition)
	require.Equal(t, "180", product.Weight)
	require.Equal(t, []string{"салат", "готовая еда"}, product.Tags)
	require.Equal(t, "210", product.Energy)
	require.Equal(t, "12.5", product.Protein)
	require.Equal(t, "9.1", product.Fat)
	require.Equal(t, "7.8", product.Carbs)
	require.Equal(t, 4, product.NutritionFieldCount())

	// Composition present on the first attempt, so no re-fetch.
	require.Equal(t, 1, fetcher.callCount())
}

func TestExtractIsDeterministic(t *testing.T) {
	t.Parallel()

	pageURL := "https://shop.example.ru/goods/olivie-1042.html"
	fetcher := &fakeFetcher{responses: []catalog.FetchResponse{htmlResponse(pageURL, detailPage)}}
	e := newTestExtractor(fetcher)

	first, err := e.Extract(context.Background(), pageURL)
	require.NoError(t, err)
	second, err := e.Extract(context.Background(), pageURL)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestExtractRetriesForMissingComposition(t *testing.T) {
	t.Parallel()

	pageURL := "https://shop.example.ru/goods/sup-17.html"
	withoutComposition := `<html><body><h1>Суп куриный</h1><div class="price">119 руб</div></body></html>`
	withComposition := `<html><body><h1>Суп куриный</h1><div class="price">119 руб</div><p>Состав: бульон, курица, лапша</p></body></html>`
	fetcher := &fakeFetcher{responses: []catalog.FetchResponse{
		htmlResponse(pageURL, withoutComposition),
		htmlResponse(pageURL, withComposition),
	}}

	product, err := newTestExtractor(fetcher).Extract(context.Background(), pageURL)
	require.NoError(t, err)
	require.NotNil(t, product)
	require.Equal(t, "Состав: бульон, курица, лапша", product.Composition)
	require.Equal(t, 2, fetcher.callCount())
}

func TestExtractStopsAtRetryBudget(t *testing.T) {
	t.Parallel()

	pageURL := "https://shop.example.ru/goods/sup-17.html"
	page := `<html><body><h1>Суп куриный</h1><div class="price">119 руб</div></body></html>`
	fetcher := &fakeFetcher{responses: []catalog.FetchResponse{htmlResponse(pageURL, page)}}

	product, err := newTestExtractor(fetcher).Extract(context.Background(), pageURL)
	require.NoError(t, err)
	require.NotNil(t, product)
	require.Empty(t, product.Composition)
	require.Equal(t, "Суп куриный", product.Name)

	// Budget of 2 re-fetches means three attempts total.
	require.Equal(t, 3, fetcher.callCount())
}

func TestExtractZeroBudgetDisablesRetries(t *testing.T) {
	t.Parallel()

	pageURL := "https://shop.example.ru/goods/sup-17.html"
	page := `<html><body><h1>Суп куриный</h1><div class="price">119 руб</div></body></html>`
	fetcher := &fakeFetcher{responses: []catalog.FetchResponse{htmlResponse(pageURL, page)}}

	e := New(Config{RetryBudget: 0, RetryBackoff: time.Millisecond}, fetcher, zap.NewNop())
	product, err := e.Extract(context.Background(), pageURL)
	require.NoError(t, err)
	require.NotNil(t, product)
	require.Empty(t, product.Composition)

	// A zero budget is a policy, not an unset value: exactly one fetch
	// even when composition is missing.
	require.Equal(t, 1, fetcher.callCount())
}

func TestExtractDiscardsPageWithoutName(t *testing.T) {
	t.Parallel()

	pageURL := "https://shop.example.ru/goods/empty.html"
	page := `<html><body><p>Состав: вода</p></body></html>`
	fetcher := &fakeFetcher{responses: []catalog.FetchResponse{htmlResponse(pageURL, page)}}

	product, err := newTestExtractor(fetcher).Extract(context.Background(), pageURL)
	require.NoError(t, err)
	require.Nil(t, product)
}

func TestExtractReturnsStatusError(t *testing.T) {
	t.Parallel()

	pageURL := "https://shop.example.ru/goods/gone.html"
	fetcher := &fakeFetcher{responses: []catalog.FetchResponse{{URL: pageURL, StatusCode: http.StatusNotFound}}}

	product, err := newTestExtractor(fetcher).Extract(context.Background(), pageURL)
	require.Nil(t, product)
	require.True(t, catalog.IsStatusError(err))
	require.Equal(t, 1, fetcher.callCount())
}

func TestExtractPropagatesFetchError(t *testing.T) {
	t.Parallel()

	fetchErr := errors.New("connection refused")
	fetcher := &fakeFetcher{err: fetchErr}

	product, err := newTestExtractor(fetcher).Extract(context.Background(), "https://shop.example.ru/goods/x.html")
	require.Nil(t, product)
	require.ErrorIs(t, err, fetchErr)
}

func TestExtractHonorsContextDuringBackoff(t *testing.T) {
	t.Parallel()

	pageURL := "https://shop.example.ru/goods/sup-17.html"
	page := `<html><body><h1>Суп куриный</h1></body></html>`
	fetcher := &fakeFetcher{responses: []catalog.FetchResponse{htmlResponse(pageURL, page)}}

	e := New(Config{RetryBudget: 2, RetryBackoff: time.Minute}, fetcher, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := e.Extract(ctx, pageURL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, fetcher.callCount())
}

func TestSlugFromURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "olivie-1042", slugFromURL("https://shop.example.ru/goods/olivie-1042.html"))
	require.Equal(t, "sup", slugFromURL("https://shop.example.ru/kulinariya/sup.html?from=list"))
}

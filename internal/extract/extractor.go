// Package extract assembles normalized product records from detail pages.
// Each field is filled by an ordered chain of strategies (structured data,
// then tabular markup, then free-text heuristics); every numeric candidate
// is validated against its plausible physical range before acceptance.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/gastronom/catalog-crawler/internal/catalog"
)

// Config controls the retry-on-incomplete policy.
type Config struct {
	// RetryBudget is the number of re-fetch attempts allowed when the
	// composition field comes back empty. Composition is empirically the
	// least reliable field and benefits most from a re-fetch. Zero
	// disables re-fetching; negative values are treated as zero.
	RetryBudget int
	// RetryBackoff is the pause before each re-fetch.
	RetryBackoff time.Duration
}

const defaultRetryBackoff = 300 * time.Millisecond

// Extractor fetches one detail page and runs the strategy chains.
type Extractor struct {
	cfg     Config
	fetcher catalog.Fetcher
	logger  *zap.Logger
}

// New builds an Extractor.
func New(cfg Config, fetcher catalog.Fetcher, logger *zap.Logger) *Extractor {
	if cfg.RetryBudget < 0 {
		cfg.RetryBudget = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, fetcher: fetcher, logger: logger}
}

// Extract fetches url and assembles a record. A nil record with nil error
// means the page was unusable (empty name after the retry budget, or a
// parse failure); the caller discards the URL and moves on. Transport and
// status failures are returned as errors.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*catalog.Product, error) {
	attempts := e.cfg.RetryBudget + 1
	var product *catalog.Product

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, e.cfg.RetryBackoff); err != nil {
				return nil, err
			}
			e.logger.Debug("re-fetching for missing composition",
				zap.String("url", pageURL),
				zap.Int("attempt", attempt+1),
			)
		}

		resp, err := e.fetcher.Fetch(ctx, http.MethodGet, pageURL, catalog.FetchOptions{})
		if err != nil {
			return nil, err
		}
		if !resp.OK() {
			return nil, &catalog.StatusError{URL: pageURL, StatusCode: resp.StatusCode}
		}

		parsed, err := e.parse(pageURL, resp.Body)
		if err != nil {
			// Parse failures discard the URL, never the batch.
			e.logger.Warn("page parse failed, discarding", zap.String("url", pageURL), zap.Error(err))
			return nil, nil
		}
		product = parsed
		if product.Composition != "" {
			break
		}
	}

	if product == nil || product.Name == "" {
		return nil, nil
	}
	return product, nil
}

// parse runs the strategy chains over one response body. Any panic inside
// a strategy is converted into an error so one broken page cannot take
// down the run.
func (e *Extractor) parse(pageURL string, body []byte) (product *catalog.Product, err error) {
	defer func() {
		if r := recover(); r != nil {
			product = nil
			err = fmt.Errorf("extraction panicked: %v", r)
		}
	}()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse detail page: %w", err)
	}
	p := newPage(pageURL, string(body), doc)

	product = &catalog.Product{
		ID:  slugFromURL(pageURL),
		URL: pageURL,
	}
	product.Name = runChain(p, nameChain())
	product.Price = runChain(p, priceChain())
	product.PhotoURL = runChain(p, photoChain())
	product.Composition = runChain(p, compositionChain())
	product.Weight = runChain(p, weightChain())
	product.Tags = pageTags(p)
	fillNutrition(p, product)
	return product, nil
}

// pageTags harvests meta keywords as a lightweight tag list.
func pageTags(p *page) []string {
	content, ok := p.doc.Find(`meta[name="keywords"]`).Attr("content")
	if !ok {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(content, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// slugFromURL derives a stable identifier from the detail URL path.
func slugFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	base := path.Base(u.Path)
	return strings.TrimSuffix(base, path.Ext(base))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

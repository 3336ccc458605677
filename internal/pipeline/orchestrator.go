// Package pipeline drives the full crawl: location binding, sequential
// category walks, batched bounded-parallel extraction, classification, and
// final statistics.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gastronom/catalog-crawler/internal/catalog"
	"github.com/gastronom/catalog-crawler/internal/metrics"
)

// Config controls batching and the target-count cutoff.
type Config struct {
	Targets []catalog.CrawlTarget
	// TargetCount stops the whole run the moment the result collection
	// reaches it, even mid-batch. Zero means exhaust the input.
	TargetCount int
	// BatchSize is how many URLs one extraction batch covers.
	BatchSize int
	// ExtractConcurrency bounds simultaneous detail-page extraction tasks.
	// Tighter than the fetch client's gate; the effective concurrency is
	// the minimum of the two.
	ExtractConcurrency int
	// BatchPause is the self-imposed rest between batches.
	BatchPause time.Duration
	// Address is handed to the location binder once, before any walk.
	Address string
}

const (
	defaultBatchSize          = 12
	defaultExtractConcurrency = 6
	defaultBatchPause         = 500 * time.Millisecond
)

// Walker discovers detail URLs for one category.
type Walker interface {
	Discover(ctx context.Context, target catalog.CrawlTarget) *catalog.URLSet
}

// LocationBinder binds a geographic context to the session. Best effort.
type LocationBinder interface {
	Bind(ctx context.Context, addressOrCoords string)
}

// Orchestrator owns the run loop.
type Orchestrator struct {
	cfg        Config
	binder     LocationBinder
	walker     Walker
	extractor  catalog.Extractor
	classifier catalog.Classifier
	logger     *zap.Logger
}

// New builds an Orchestrator.
func New(
	cfg Config,
	binder LocationBinder,
	walker Walker,
	extractor catalog.Extractor,
	classifier catalog.Classifier,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.ExtractConcurrency <= 0 {
		cfg.ExtractConcurrency = defaultExtractConcurrency
	}
	if cfg.BatchPause <= 0 {
		cfg.BatchPause = defaultBatchPause
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:        cfg,
		binder:     binder,
		walker:     walker,
		extractor:  extractor,
		classifier: classifier,
		logger:     logger,
	}
}

// Run executes the pipeline and returns whatever was collected, even when
// interrupted. Result order is arrival order, not input order.
func (o *Orchestrator) Run(ctx context.Context) ([]catalog.Product, catalog.Stats) {
	if o.binder != nil {
		o.binder.Bind(ctx, o.cfg.Address)
	}

	urls, categoryByURL := o.discoverAll(ctx)

	var stats catalog.Stats
	stats.URLsDiscovered = len(urls)
	o.logger.Info("discovery finished", zap.Int("urls", len(urls)))

	results := o.extractAll(ctx, urls, categoryByURL, &stats)

	o.logger.Info("pipeline finished",
		zap.Int("accepted", stats.Accepted),
		zap.Int("rejected", stats.Rejected),
		zap.Int("discarded", stats.Discarded),
	)
	return results, stats
}

// discoverAll runs the walker per category, sequentially, and unions the
// per-category sets into one global deduplicated list. Sequential walks
// bound total concurrent load and keep stall accounting simple.
func (o *Orchestrator) discoverAll(ctx context.Context) ([]string, map[string]string) {
	union := catalog.NewURLSet()
	categoryByURL := make(map[string]string)

	for _, target := range o.cfg.Targets {
		if ctx.Err() != nil {
			break
		}
		found := o.walker.Discover(ctx, target)
		for _, u := range found.URLs() {
			if union.Add(u) {
				categoryByURL[u] = target.CategoryPath
			}
		}
		o.logger.Info("category discovered",
			zap.String("category", target.CategoryPath),
			zap.Int("new_total", union.Len()),
		)
	}
	return union.URLs(), categoryByURL
}

// extractAll processes the URL list in fixed-size batches under the
// extraction gate, filtering through the classifier and appending accepted
// records until the target count is reached or the input is exhausted.
func (o *Orchestrator) extractAll(
	ctx context.Context,
	urls []string,
	categoryByURL map[string]string,
	stats *catalog.Stats,
) []catalog.Product {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		results []catalog.Product
	)

	appendAccepted := func(p catalog.Product) {
		mu.Lock()
		defer mu.Unlock()
		if o.cfg.TargetCount > 0 && len(results) >= o.cfg.TargetCount {
			return
		}
		results = append(results, p)
		stats.Observe(p)
		if o.cfg.TargetCount > 0 && len(results) >= o.cfg.TargetCount {
			cancel()
		}
	}

	for start := 0; start < len(urls); start += o.cfg.BatchSize {
		if runCtx.Err() != nil {
			break
		}
		end := start + o.cfg.BatchSize
		if end > len(urls) {
			end = len(urls)
		}
		o.runBatch(runCtx, urls[start:end], categoryByURL, stats, &mu, appendAccepted)

		if end < len(urls) && runCtx.Err() == nil {
			if err := sleepCtx(runCtx, o.cfg.BatchPause); err != nil {
				break
			}
		}
	}
	return results
}

func (o *Orchestrator) runBatch(
	ctx context.Context,
	batch []string,
	categoryByURL map[string]string,
	stats *catalog.Stats,
	mu *sync.Mutex,
	appendAccepted func(catalog.Product),
) {
	gate := make(chan struct{}, o.cfg.ExtractConcurrency)
	var wg sync.WaitGroup

	for _, u := range batch {
		select {
		case gate <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}
		wg.Add(1)
		go func(pageURL string) {
			defer wg.Done()
			defer func() { <-gate }()
			o.processURL(ctx, pageURL, categoryByURL[pageURL], stats, mu, appendAccepted)
		}(u)
	}
	wg.Wait()
}

// processURL extracts and classifies one detail page. Every per-product
// failure is isolated here; nothing aborts the run.
func (o *Orchestrator) processURL(
	ctx context.Context,
	pageURL string,
	category string,
	stats *catalog.Stats,
	mu *sync.Mutex,
	appendAccepted func(catalog.Product),
) {
	if ctx.Err() != nil {
		return
	}
	product, err := o.extractor.Extract(ctx, pageURL)

	mu.Lock()
	stats.PagesExtracted++
	mu.Unlock()

	switch {
	case err != nil:
		if !errors.Is(err, context.Canceled) {
			o.logger.Warn("extraction failed", zap.String("url", pageURL), zap.Error(err))
		}
		o.markDiscarded(stats, mu)
		return
	case product == nil:
		o.logger.Debug("page discarded as unusable", zap.String("url", pageURL))
		o.markDiscarded(stats, mu)
		return
	}

	product.Category = category
	metrics.ProductExtracted()

	if !o.classifier.Accept(*product) {
		mu.Lock()
		stats.Rejected++
		mu.Unlock()
		metrics.ProductRejected()
		return
	}

	metrics.ProductAccepted(product.NutritionFieldCount())
	appendAccepted(*product)
}

func (o *Orchestrator) markDiscarded(stats *catalog.Stats, mu *sync.Mutex) {
	mu.Lock()
	stats.Discarded++
	mu.Unlock()
	metrics.ProductDiscarded()
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

// Package discover implements the per-category pagination walk that turns
// a category path into a deduplicated set of product-detail URLs.
package discover

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gastronom/catalog-crawler/internal/catalog"
)

// Config controls walk termination and pacing.
type Config struct {
	BaseURL string
	// DetailURLPattern matches the path of a product detail page, e.g.
	// ^/goods/.+\.html$ in this catalog's convention.
	DetailURLPattern *regexp.Regexp
	// PageCeiling bounds the worst-case walk length even if stall and cap
	// signals never fire.
	PageCeiling int
	// PageDelay is the self-imposed pause between consecutive page
	// requests, independent of the fetch client's concurrency gate.
	PageDelay time.Duration
}

const (
	defaultPageCeiling = 60
	defaultPageDelay   = 150 * time.Millisecond
)

// Walker discovers product URLs one category page at a time. Discovery is
// strictly sequential within a category: each page's request depends on the
// previous page's outcome.
type Walker struct {
	cfg     Config
	fetcher catalog.Fetcher
	logger  *zap.Logger
	pacer   *rate.Limiter
}

// New builds a Walker.
func New(cfg Config, fetcher catalog.Fetcher, logger *zap.Logger) *Walker {
	if cfg.PageCeiling <= 0 {
		cfg.PageCeiling = defaultPageCeiling
	}
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = defaultPageDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
		pacer:   rate.NewLimiter(rate.Every(cfg.PageDelay), 1),
	}
}

// Discover walks category pages until a stop signal fires and returns the
// URL set found so far. Errors end the walk silently beyond a log line:
// discovery is best effort, a failed category yields what it found.
func (w *Walker) Discover(ctx context.Context, target catalog.CrawlTarget) *catalog.URLSet {
	found := catalog.NewURLSet()
	log := w.logger.With(zap.String("category", target.CategoryPath))

	for page := 1; page <= w.cfg.PageCeiling; page++ {
		if err := w.pacer.Wait(ctx); err != nil {
			return found
		}

		pageURL, err := w.categoryPageURL(target.CategoryPath, page)
		if err != nil {
			log.Error("bad category url", zap.Error(err))
			return found
		}

		resp, err := w.fetcher.Fetch(ctx, http.MethodGet, pageURL, catalog.FetchOptions{})
		if err != nil {
			log.Warn("page fetch failed, ending walk", zap.Int("page", page), zap.Error(err))
			return found
		}
		if !resp.OK() {
			// Distinct from a stall: the origin said no, it did not
			// repeat itself.
			log.Info("walk stopped on status",
				zap.Int("page", page),
				zap.Int("status", resp.StatusCode),
			)
			return found
		}

		newLinks, err := w.harvest(resp, found, target.MaxProducts)
		if err != nil {
			log.Warn("page parse failed, ending walk", zap.Int("page", page), zap.Error(err))
			return found
		}
		if newLinks == 0 {
			// The origin repeats the last page past the end rather than
			// returning an empty page or an error.
			log.Info("walk stalled, no new links",
				zap.Int("page", page),
				zap.Int("found", found.Len()),
			)
			return found
		}
		if target.MaxProducts > 0 && found.Len() >= target.MaxProducts {
			log.Info("walk reached product cap",
				zap.Int("page", page),
				zap.Int("found", found.Len()),
			)
			return found
		}
	}

	log.Info("walk hit page ceiling", zap.Int("found", found.Len()))
	return found
}

// harvest adds every not-yet-seen detail link on the page and returns how
// many were new.
func (w *Walker) harvest(resp catalog.FetchResponse, found *catalog.URLSet, maxProducts int) (int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return 0, fmt.Errorf("parse category page: %w", err)
	}
	base, err := url.Parse(resp.URL)
	if err != nil {
		return 0, fmt.Errorf("parse page url: %w", err)
	}

	newLinks := 0
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return true
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return true
		}
		if !w.cfg.DetailURLPattern.MatchString(resolved.Path) {
			return true
		}
		if found.Add(resolved.String()) {
			newLinks++
		}
		return maxProducts <= 0 || found.Len() < maxProducts
	})
	return newLinks, nil
}

// categoryPageURL joins the configured base with the category path and the
// page query parameter.
func (w *Walker) categoryPageURL(categoryPath string, page int) (string, error) {
	raw := categoryPath
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = strings.TrimRight(w.cfg.BaseURL, "/") + "/" + strings.TrimLeft(categoryPath, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse category path %q: %w", categoryPath, err)
	}
	q := u.Query()
	q.Set("page", fmt.Sprintf("%d", page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Package fetch implements the shared session HTTP client on top of the
// Colly collector. Every other component performs its network I/O through
// this client so server-issued cookies accumulate in a single jar.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/gastronom/catalog-crawler/internal/catalog"
	"github.com/gastronom/catalog-crawler/internal/metrics"
)

// Config controls client behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxInFlight int
}

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxInFlight = 8
	defaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// session bundles everything discarded together on a transport failure:
// the cookie jar, the connection pool, and the collector built on them.
type session struct {
	jar       *cookiejar.Jar
	transport *http.Transport
	collector *colly.Collector
}

// Client is a bounded-concurrency fetch client with automatic
// session-cookie propagation. The admission gate is the backpressure
// mechanism protecting the origin; callers block until a slot frees up.
type Client struct {
	cfg    Config
	logger *zap.Logger
	gate   chan struct{}

	mu      sync.Mutex
	session *session
	resets  int
}

// New builds a Client. The underlying session is created lazily on the
// first request.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
		gate:   make(chan struct{}, cfg.MaxInFlight),
	}
}

// Fetch executes one HTTP request. Non-2xx responses are returned with
// their status code, not as errors; transport failures reset the session
// and surface wrapped in catalog.ErrTransport. There is no retry at this
// layer.
func (c *Client) Fetch(ctx context.Context, method, url string, opts catalog.FetchOptions) (catalog.FetchResponse, error) {
	select {
	case c.gate <- struct{}{}:
	case <-ctx.Done():
		return catalog.FetchResponse{}, fmt.Errorf("fetch admission canceled: %w", ctx.Err())
	}

	sess, err := c.currentSession()
	if err != nil {
		<-c.gate
		return catalog.FetchResponse{}, err
	}

	var (
		result   catalog.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := c.buildCollector(sess, opts, start, &result, &fetchErr)

	if err := c.runCollector(ctx, collector, method, url, opts); err != nil {
		if isTransportFailure(err) {
			c.resetSession(sess, url, err)
			return catalog.FetchResponse{}, fmt.Errorf("%w: %v", catalog.ErrTransport, err)
		}
		return catalog.FetchResponse{}, err
	}
	if fetchErr != nil {
		if isTransportFailure(fetchErr) {
			c.resetSession(sess, url, fetchErr)
			return catalog.FetchResponse{}, fmt.Errorf("%w: %v", catalog.ErrTransport, fetchErr)
		}
		return catalog.FetchResponse{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	metrics.PageFetched(result.StatusCode)
	return result, nil
}

// SessionResets reports how many times the session was discarded. Exposed
// for metrics and tests.
func (c *Client) SessionResets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}

// Close tears down the current session explicitly at pipeline completion.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.transport.CloseIdleConnections()
		c.session = nil
	}
}

// currentSession returns the live session, lazily creating one.
func (c *Client) currentSession() (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session, nil
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	transport := newHTTPTransport()

	// All backend state (transport, jar, timeout) is set exactly once
	// here: clones share the backend, so mutating it per request would
	// race with in-flight calls.
	// colly v2.1.0's Async option ignores its argument and always enables
	// async mode, so rely on the zero value (Async=false) instead.
	base := colly.NewCollector()
	base.UserAgent = c.cfg.UserAgent
	base.IgnoreRobotsTxt = true
	base.ParseHTTPErrorResponse = true
	base.DetectCharset = true
	base.AllowURLRevisit = true
	base.SetRequestTimeout(c.cfg.Timeout)
	base.WithTransport(transport)
	base.SetCookieJar(jar)

	c.session = &session{jar: jar, transport: transport, collector: base}
	return c.session, nil
}

// resetSession discards sess if it is still current, losing accumulated
// cookies. The next call rebuilds lazily.
func (c *Client) resetSession(sess *session, url string, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != sess {
		return
	}
	sess.transport.CloseIdleConnections()
	c.session = nil
	c.resets++
	metrics.SessionReset()
	c.logger.Warn("session reset after transport failure",
		zap.String("url", url),
		zap.Error(cause),
	)
}

func (c *Client) buildCollector(
	sess *session,
	opts catalog.FetchOptions,
	start time.Time,
	result *catalog.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	// Clone inherits the configured fields and the shared backend; only
	// the per-request callbacks are fresh.
	collector := sess.collector.Clone()

	collector.OnRequest(func(r *colly.Request) {
		c.applyDefaultHeaders(r)
		if opts.ContentType != "" {
			r.Headers.Set("Content-Type", opts.ContentType)
		}
		for key, values := range opts.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		*result = catalog.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			// Non-2xx with a real status is a response, not a failure.
			*result = catalog.FetchResponse{
				URL:        r.Request.URL.String(),
				StatusCode: r.StatusCode,
				Headers:    r.Headers.Clone(),
				Body:       append([]byte(nil), r.Body...),
				Duration:   time.Since(start),
			}
			return
		}
		*fetchErr = err
	})

	return collector
}

// applyDefaultHeaders mimics an ordinary desktop browser. Fixed
// configuration, never evolved at runtime.
func (c *Client) applyDefaultHeaders(r *colly.Request) {
	r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	r.Headers.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.5")
	r.Headers.Set("Connection", "keep-alive")
}

// runCollector issues the request on its own goroutine so the caller can
// abandon it on context cancellation. The admission slot is released by
// that goroutine, not the caller: an abandoned request still occupies its
// slot until it actually finishes, keeping MaxInFlight a hard bound.
func (c *Client) runCollector(ctx context.Context, collector *colly.Collector, method, url string, opts catalog.FetchOptions) error {
	done := make(chan error, 1)
	go func() {
		defer func() { <-c.gate }()
		if len(opts.Body) > 0 {
			done <- collector.Request(method, url, bytes.NewReader(opts.Body), nil, nil)
			return
		}
		done <- collector.Request(method, url, nil, nil, nil)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		return err
	}
}

func isTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

// Package search implements a rate-limited, retrying client for the
// marketplace product search API.
package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-wb-ranker/config"
	"github.com/aluiziolira/go-wb-ranker/metrics"
	"github.com/aluiziolira/go-wb-ranker/models"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const captureKey = "capture"

// Client fetches single search result pages. It is safe for concurrent use.
type Client struct {
	cfg       config.Config
	base      *url.URL
	collector *colly.Collector
	headers   http.Header
	limiter   *rate.Limiter
	delay     jitter
	cache     *lru.Cache[string, models.PageResult]
	metrics   *metrics.Metrics

	requests atomic.Int64
}

// capture receives the response of one colly request.
type capture struct {
	status int
	body   []byte
	header http.Header
}

// New builds a client configured from cfg. m may be nil.
func New(cfg config.Config, m *metrics.Metrics) (*Client, error) {
	parsed, err := url.Parse(cfg.SearchURL)
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("search url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
	)
	// Non-2xx bodies still reach OnResponse so status mapping happens here.
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(cfg.RequestTimeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.RequestTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.ConcurrencyLimit,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.ConcurrencyLimit,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	c := &Client{
		cfg:       cfg,
		base:      parsed,
		collector: collector,
		headers:   browserHeaders(),
		delay:     jitter{min: cfg.DelayMin, max: cfg.DelayMax},
		metrics:   m,
	}
	if cfg.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst)
	}
	if cfg.PageCacheSize > 0 {
		cache, err := lru.New[string, models.PageResult](cfg.PageCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create page cache: %w", err)
		}
		c.cache = cache
	}

	collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
	})
	collector.OnResponse(func(r *colly.Response) {
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			c.metrics.ObserveDuration(time.Since(start))
		}
		cp, ok := r.Ctx.GetAny(captureKey).(*capture)
		if !ok {
			return
		}
		cp.status = r.StatusCode
		cp.body = r.Body
		if r.Headers != nil {
			cp.header = r.Headers.Clone()
		}
	})

	return c, nil
}

// SetTransport replaces the HTTP transport used by the underlying collector.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.collector.WithTransport(rt)
}

// Requests returns the number of HTTP requests issued so far.
func (c *Client) Requests() int64 {
	return c.requests.Load()
}

// FetchPage returns one page of search results for keyword. Transient
// failures are retried with exponential backoff; the last error is returned
// once attempts are exhausted. Context errors are returned unwrapped.
func (c *Client) FetchPage(ctx context.Context, keyword string, page int) (models.PageResult, error) {
	key := cacheKey(keyword, page)
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			c.metrics.IncCacheHit()
			return cached, nil
		}
	}

	for retry := 0; ; retry++ {
		if err := c.pace(ctx); err != nil {
			return models.PageResult{}, err
		}

		res := c.attempt(keyword, page)
		switch res.kind {
		case attemptOK:
			if c.cache != nil {
				c.cache.Add(key, res.page)
			}
			return res.page, nil
		case attemptFatal:
			c.metrics.IncError(errorTypeLabel(res.err))
			return models.PageResult{}, res.err
		}

		c.metrics.IncError(errorTypeLabel(res.err))
		if retry >= c.cfg.RetryAttempts {
			return models.PageResult{}, fmt.Errorf("search %q page %d after %d attempts: %w", keyword, page, retry+1, res.err)
		}

		delay := backoff(c.cfg.RetryBackoff, c.cfg.BackoffFactor, c.cfg.RetryBackoffMax, retry, res.retryAfter)
		c.metrics.IncRetries()
		slog.Warn("search retry",
			slog.String("keyword", keyword),
			slog.Int("page", page),
			slog.Int("attempt", retry+1),
			slog.Duration("delay", delay),
			slog.Any("error", res.err),
		)
		if err := sleep(ctx, delay); err != nil {
			return models.PageResult{}, err
		}
	}
}

// pace waits for the rate limiter and the inter-request jitter.
func (c *Client) pace(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("rate limiter: %w", err)
		}
	}
	return c.delay.Wait(ctx)
}

type attemptKind int

const (
	attemptOK attemptKind = iota
	attemptRetryable
	attemptFatal
)

// attempt is the result of one HTTP round trip.
type attempt struct {
	kind       attemptKind
	page       models.PageResult
	err        error
	retryAfter time.Duration
}

func (c *Client) attempt(keyword string, page int) attempt {
	cp := &capture{}
	rctx := colly.NewContext()
	rctx.Put(captureKey, cp)

	c.requests.Add(1)
	err := c.collector.Request(http.MethodGet, c.pageURL(keyword, page), nil, rctx, c.headers.Clone())
	if err != nil {
		c.metrics.IncRequest("error")
		classified := classifyError(err, 0, nil)
		if Retryable(classified) {
			return attempt{kind: attemptRetryable, err: classified}
		}
		return attempt{kind: attemptFatal, err: classified}
	}

	if classified := classifyError(nil, cp.status, cp.header); classified != nil {
		c.metrics.IncRequest("error")
		var rateLimited ErrRateLimited
		if errors.As(classified, &rateLimited) {
			return attempt{kind: attemptRetryable, err: classified, retryAfter: rateLimited.RetryAfter}
		}
		if Retryable(classified) {
			return attempt{kind: attemptRetryable, err: classified}
		}
		return attempt{kind: attemptFatal, err: classified}
	}

	body, err := decodeBody(cp.body, cp.header)
	if err != nil {
		c.metrics.IncRequest("error")
		return attempt{kind: attemptFatal, err: ErrMalformedResponse{Err: err}}
	}
	result, err := parsePage(body, page, c.cfg.PageSize)
	if err != nil {
		c.metrics.IncRequest("error")
		return attempt{kind: attemptFatal, err: err}
	}
	c.metrics.IncRequest("ok")
	return attempt{kind: attemptOK, page: result}
}

func (c *Client) pageURL(keyword string, page int) string {
	u := *c.base
	q := u.Query()
	q.Set("query", keyword)
	q.Set("page", strconv.Itoa(page))
	q.Set("sort", "popular")
	q.Set("locale", "ru")
	q.Set("lang", "ru")
	q.Set("curr", "rub")
	q.Set("dest", c.cfg.Dest)
	q.Set("appType", "1")
	q.Set("resultset", "catalog")
	u.RawQuery = q.Encode()
	return u.String()
}

func cacheKey(keyword string, page int) string {
	return strings.ToLower(keyword) + "\x00" + strconv.Itoa(page)
}

func browserHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
	h.Set("Accept-Encoding", "gzip, br")
	h.Set("Origin", "https://www.wildberries.ru")
	h.Set("Referer", "https://www.wildberries.ru/")
	h.Set("Cache-Control", "no-cache")
	return h
}

// decodeBody undoes brotli encoding; colly already handles gzip.
func decodeBody(body []byte, header http.Header) ([]byte, error) {
	if header == nil || !strings.EqualFold(header.Get("Content-Encoding"), "br") {
		return body, nil
	}
	out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	if err != nil {
		return nil, fmt.Errorf("brotli decode: %w", err)
	}
	return out, nil
}

func classifyError(err error, statusCode int, header http.Header) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if err != nil {
		if isCollectorError(err) {
			return err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrNetwork{Kind: KindTimeout, Err: err}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrNetwork{Kind: KindTimeout, Err: err}
		}
		return ErrNetwork{Kind: KindConnection, Err: err}
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusTooManyRequests:
		return ErrRateLimited{
			RetryAfter: parseRetryAfter(header),
			Err:        fmt.Errorf("http status %d", statusCode),
		}
	case statusCode >= 500:
		return ErrNetwork{Kind: KindServer, Err: fmt.Errorf("http status %d", statusCode)}
	default:
		return ErrUnexpectedStatus{StatusCode: statusCode}
	}
}

// isCollectorError reports collector-side rejections that no retry can fix.
func isCollectorError(err error) bool {
	return errors.Is(err, colly.ErrForbiddenDomain) ||
		errors.Is(err, colly.ErrMissingURL) ||
		errors.Is(err, colly.ErrRobotsTxtBlocked) ||
		errors.Is(err, colly.ErrAlreadyVisited)
}

func parseRetryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// Package fetch is the canonical task submitter: a small HTTP client for
// polite page fetching. Per-site pacing belongs to the governors; this client
// only adds a process-wide rate ceiling, a User-Agent, and a request timeout.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"sitepacer/internal/governor"
	logx "sitepacer/pkg/logx"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "sitepacer/1.0 (+polite crawler)"

	// maxBodyBytes caps how much of a page we read; listings pages beyond
	// this are almost certainly not content we want.
	maxBodyBytes = 8 << 20
)

type Config struct {
	UserAgent string
	Timeout   time.Duration

	// GlobalRatePerSec is a process-wide ceiling across all sites,
	// independent of per-site governors. 0 disables it.
	GlobalRatePerSec float64
}

// Page is the result of a successful fetch.
type Page struct {
	URL     string
	Status  int
	Body    []byte
	Fetched time.Time
	Elapsed time.Duration
}

type Client struct {
	hc      *http.Client
	limiter *rate.Limiter
	ua      string
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	var lim *rate.Limiter
	if cfg.GlobalRatePerSec > 0 {
		// Burst of 1: the ceiling is a hard spacing guarantee, not an average.
		lim = rate.NewLimiter(rate.Limit(cfg.GlobalRatePerSec), 1)
	}
	return &Client{
		hc:      &http.Client{Timeout: timeout},
		limiter: lim,
		ua:      ua,
		log:     log,
	}
}

// Fetch retrieves url. Non-2xx responses come back as *governor.StatusError
// so the backoff policy can see 429/503.
func (c *Client) Fetch(ctx context.Context, url string) (*Page, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.ua)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		if !c.log.IsZero() {
			c.log.Debug("fetch rejected", logx.String("url", url), logx.Int("status", resp.StatusCode))
		}
		return nil, &governor.StatusError{Code: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}

	elapsed := time.Since(start)
	if !c.log.IsZero() {
		c.log.Debug("fetched", logx.String("url", url), logx.Int("status", resp.StatusCode), logx.Int("bytes", len(body)), logx.Duration("dur", elapsed))
	}
	return &Page{
		URL:     url,
		Status:  resp.StatusCode,
		Body:    body,
		Fetched: start,
		Elapsed: elapsed,
	}, nil
}

// Task wraps a fetch of url as a governor task. The result settles as *Page.
func (c *Client) Task(url string) governor.Task {
	return func(ctx context.Context) (any, error) {
		return c.Fetch(ctx, url)
	}
}

// Package collyfetcher implements forum.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/sethvargo/go-retry"

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
	"github.com/JakeFAU/realtime-forum-crawler/internal/metrics"
)

const defaultTimeout = 15 * time.Second

// Waiter spaces out requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	RespectRobots  bool
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Limiter        Waiter
	// Kind labels fetch metrics for requests that carry no kind of their
	// own; defaults to "page".
	Kind string
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.Code)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// Fetcher implements forum.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. Collectors are cloned per fetch and share visit
// storage, so revisits must be allowed for the listing to be polled.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 250 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = cfg.BackoffInitial
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Kind == "" {
		cfg.Kind = "page"
	}

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	c.SetRequestTimeout(cfg.Timeout)

	c.WithTransport(newRobotsAwareTransport(newHTTPTransport()))

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch performs a GET with bounded retries. Invalid URLs wrap
// forum.ErrFatalFetch; everything else is transient for the caller.
func (f *Fetcher) Fetch(ctx context.Context, request forum.FetchRequest) (forum.FetchResponse, error) {
	if err := validateURL(request.URL); err != nil {
		return forum.FetchResponse{}, err
	}

	backoff := retry.WithMaxRetries(uint64(f.cfg.MaxRetries), //nolint:gosec // clamped non-negative in New
		retry.WithCappedDuration(f.cfg.BackoffMax, retry.NewExponential(f.cfg.BackoffInitial)))

	var (
		result  forum.FetchResponse
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.ObserveFetchRetry(metrics.SanitizeSite(request.URL))
		}
		if f.cfg.Limiter != nil {
			if err := f.cfg.Limiter.Wait(ctx, request.URL); err != nil {
				return fmt.Errorf("rate limit: %w", err)
			}
		}
		resp, err := f.fetchOnce(ctx, request)
		if err != nil {
			if ctx.Err() == nil && isRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = resp
		return nil
	})
	if err != nil {
		if errors.Is(err, colly.ErrMissingURL) {
			return forum.FetchResponse{}, fmt.Errorf("%w: %w", forum.ErrFatalFetch, err)
		}
		return forum.FetchResponse{}, err
	}
	return result, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, request forum.FetchRequest) (forum.FetchResponse, error) {
	var (
		result   forum.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, request, start, &result, &fetchErr)

	site := metrics.SanitizeSite(request.URL)
	err := f.runCollector(ctx, collector, request.URL, &fetchErr)
	status := "error"
	var se *StatusError
	switch {
	case err == nil:
		status = strconv.Itoa(result.StatusCode)
	case errors.As(err, &se):
		status = strconv.Itoa(se.Code)
	}
	kind := request.Kind
	if kind == "" {
		kind = f.cfg.Kind
	}
	metrics.ObserveFetch(site, kind, status, len(result.Body))
	if err != nil {
		return forum.FetchResponse{}, err
	}
	return result, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request forum.FetchRequest,
	start time.Time,
	result *forum.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = forum.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = &StatusError{URL: request.URL, Code: r.StatusCode}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func copyHeaders(request forum.FetchRequest, r *colly.Request) {
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: %w", forum.ErrFatalFetch, colly.ErrMissingURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: parse %q: %w", forum.ErrFatalFetch, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", forum.ErrFatalFetch, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host in %q", forum.ErrFatalFetch, raw)
	}
	return nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, colly.ErrRobotsTxtBlocked) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
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

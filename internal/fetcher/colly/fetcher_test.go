package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
	"github.com/JakeFAU/realtime-forum-crawler/internal/metrics"
)

func testConfig() Config {
	return Config{
		UserAgent:      "forum-test-agent",
		Timeout:        2 * time.Second,
		MaxRetries:     2,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
	}
}

func TestFetchReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-UA", r.UserAgent())
		w.Header().Set("X-Seen-Trace", r.Header.Get("X-Trace"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	t.Cleanup(srv.Close)

	f := New(testConfig())
	resp, err := f.Fetch(context.Background(), forum.FetchRequest{
		URL:     srv.URL + "/whats-new",
		Headers: http.Header{"X-Trace": {"yes"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<html>ok</html>", string(resp.Body))
	require.Equal(t, srv.URL+"/whats-new", resp.URL)
	require.Equal(t, "forum-test-agent", resp.Headers.Get("X-Seen-UA"))
	require.Equal(t, "yes", resp.Headers.Get("X-Seen-Trace"))
}

func TestFetchSameURLTwice(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("listing"))
	}))
	t.Cleanup(srv.Close)

	f := New(testConfig())
	for range 2 {
		_, err := f.Fetch(context.Background(), forum.FetchRequest{URL: srv.URL})
		require.NoError(t, err)
	}
	require.EqualValues(t, 2, hits.Load())
}

func TestFetchRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	t.Cleanup(srv.Close)

	f := New(testConfig())
	resp, err := f.Fetch(context.Background(), forum.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, "recovered", string(resp.Body))
	require.EqualValues(t, 3, hits.Load())
}

func TestFetchDoesNotRetryNotFound(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	f := New(testConfig())
	_, err := f.Fetch(context.Background(), forum.FetchRequest{URL: srv.URL})
	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusNotFound, se.Code)
	require.NotErrorIs(t, err, forum.ErrFatalFetch)
	require.EqualValues(t, 1, hits.Load())
}

func TestFetchGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	f := New(testConfig())
	_, err := f.Fetch(context.Background(), forum.FetchRequest{URL: srv.URL})
	require.Error(t, err)
	require.EqualValues(t, 3, hits.Load())
}

func TestFetchInvalidURLIsFatal(t *testing.T) {
	t.Parallel()

	f := New(testConfig())
	for _, raw := range []string{"", "ftp://forum.example/x", "https:///nohost", "::bad"} {
		_, err := f.Fetch(context.Background(), forum.FetchRequest{URL: raw})
		require.ErrorIs(t, err, forum.ErrFatalFetch, raw)
	}
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := New(testConfig())
	_, err := f.Fetch(ctx, forum.FetchRequest{URL: srv.URL})
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchWaitsOnLimiter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	waiter := &countingWaiter{}
	cfg := testConfig()
	cfg.Limiter = waiter
	f := New(cfg)
	_, err := f.Fetch(context.Background(), forum.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.EqualValues(t, 1, waiter.calls.Load())
}

func TestFetchRobotsDisallowIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private"))
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.RespectRobots = true
	f := New(cfg)

	_, err := f.Fetch(context.Background(), forum.FetchRequest{URL: srv.URL + "/private/thread"})
	require.ErrorIs(t, err, colly.ErrRobotsTxtBlocked)
	require.NotErrorIs(t, err, forum.ErrFatalFetch)

	resp, err := f.Fetch(context.Background(), forum.FetchRequest{URL: srv.URL + "/public"})
	require.NoError(t, err)
	require.Equal(t, "ok", string(resp.Body))
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := forum.FetchRequest{
		URL:     "https://forum.example/threads/a.1/",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	var result forum.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, req.URL)},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")

	hooks.onError(&colly.Response{StatusCode: http.StatusTooManyRequests}, errors.New("Too Many Requests"))
	var se *StatusError
	require.ErrorAs(t, fetchErr, &se)
	require.True(t, se.Retryable())
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	require.True(t, isRetryable(errors.New("connection reset")))
	require.True(t, isRetryable(&StatusError{Code: http.StatusInternalServerError}))
	require.False(t, isRetryable(&StatusError{Code: http.StatusForbidden}))
	require.False(t, isRetryable(colly.ErrRobotsTxtBlocked))
	require.False(t, isRetryable(context.Canceled))
}

type countingWaiter struct {
	calls atomic.Int32
}

func (w *countingWaiter) Wait(_ context.Context, _ string) error {
	w.calls.Add(1)
	return nil
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

func TestFetchLabelsMetricsWithRequestKind(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	t.Cleanup(srv.Close)

	f := New(testConfig())
	_, err := f.Fetch(context.Background(), forum.FetchRequest{URL: srv.URL + "/whats-new", Kind: "listing"})
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), forum.FetchRequest{URL: srv.URL + "/t/a.1/"})
	require.NoError(t, err)

	// Other tests share the loopback site label, so only presence is checked.
	kinds := fetchKindsFor(t, metrics.SanitizeSite(srv.URL))
	require.Contains(t, kinds, "listing")
	require.Contains(t, kinds, "page")
}

func fetchKindsFor(t *testing.T, site string) []string {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var kinds []string
	for _, mf := range families {
		if mf.GetName() != "crawler_fetches_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["site"] == site {
				kinds = append(kinds, labels["kind"])
			}
		}
	}
	return kinds
}

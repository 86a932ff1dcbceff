package prober_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukemcguire/siteprobe/config"
	"github.com/lukemcguire/siteprobe/prober"
	"github.com/lukemcguire/siteprobe/report"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.SitemapURL = "http://sitemap.test/sitemap.xml"
	cfg.RequestTimeout = 2 * time.Second
	return cfg
}

// pageURLs returns n distinct page URLs on server.
func pageURLs(server *httptest.Server, n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/page-%d", server.URL, i)
	}
	return urls
}

// countingServer answers every request with the next status from statuses,
// repeating the last one once the list is exhausted.
func countingServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		status := statuses[min(n, len(statuses))-1]
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, "response %d", n)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestRun_OneOutcomePerURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "3") {
			http.NotFound(w, r)
			return
		}
		_, _ = fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	tests := []struct {
		name        string
		concurrency int
		rateLimit   config.RateLimit
	}{
		{"serial", 1, config.RateLimit{}},
		{"parallel", 8, config.RateLimit{}},
		{"more workers than urls", 100, config.RateLimit{}},
		{"rate limited", 4, config.RateLimit{Requests: 200, Per: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Concurrency = tt.concurrency
			cfg.RateLimit = tt.rateLimit
			urls := pageURLs(server, 25)

			rep := prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, urls)

			require.Len(t, rep.Responses, len(urls))
			assert.Zero(t, rep.Dropped)
			seen := make(map[string]bool)
			for _, o := range rep.Responses {
				seen[o.URL] = true
			}
			for _, u := range urls {
				assert.True(t, seen[u], "missing outcome for %s", u)
			}
			assert.Equal(t, tt.concurrency, rep.ConcurrencyLimit)
			assert.Equal(t, tt.rateLimit, rep.RateLimit)
			assert.NotEmpty(t, rep.RunID)
		})
	}
}

func TestRun_NoRetryOnClientError(t *testing.T) {
	server, calls := countingServer(t, http.StatusNotFound)

	cfg := testConfig()
	cfg.Retries = 2
	rep := prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, []string{server.URL + "/missing"})

	require.Len(t, rep.Responses, 1)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusNotFound, rep.Responses[0].Status)
	assert.Equal(t, 1, rep.Responses[0].Attempts)
}

func TestRun_RetryRecoversFromServerError(t *testing.T) {
	server, calls := countingServer(t, 500, 500, 200)

	cfg := testConfig()
	cfg.Retries = 2
	rep := prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, []string{server.URL + "/flaky"})

	require.Len(t, rep.Responses, 1)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, http.StatusOK, rep.Responses[0].Status)
	assert.Equal(t, 3, rep.Responses[0].Attempts)
	assert.Equal(t, int64(len("response 3")), rep.Responses[0].BodySize)
}

func TestRun_RetryBudgetExhausted(t *testing.T) {
	server, calls := countingServer(t, http.StatusServiceUnavailable)

	cfg := testConfig()
	cfg.Retries = 3
	cfg.RetryDelay = 5 * time.Millisecond
	rep := prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, []string{server.URL})

	require.Len(t, rep.Responses, 1)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, http.StatusServiceUnavailable, rep.Responses[0].Status)
	assert.Equal(t, 4, rep.Responses[0].Attempts)
}

func TestRun_ElapsedIsLastAttemptOnly(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(300 * time.Millisecond)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Retries = 1
	rep := prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, []string{server.URL})

	require.Len(t, rep.Responses, 1)
	assert.Equal(t, http.StatusOK, rep.Responses[0].Status)
	assert.Less(t, rep.Responses[0].Elapsed, 300*time.Millisecond)
}

func TestRun_ConcurrencyCeiling(t *testing.T) {
	var inFlight, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Concurrency = 1
	rep := prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, pageURLs(server, 10))

	require.Len(t, rep.Responses, 10)
	assert.GreaterOrEqual(t, rep.TotalTime, 900*time.Millisecond)
	assert.Equal(t, int32(1), peak.Load())
}

func TestRun_ConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Concurrency = 3
	rep := prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, pageURLs(server, 20))

	require.Len(t, rep.Responses, 20)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRun_RateLimitSpacing(t *testing.T) {
	server, _ := countingServer(t, http.StatusOK)

	cfg := testConfig()
	cfg.Concurrency = 10
	cfg.RateLimit = config.RateLimit{Requests: 20, Per: time.Second}
	rep := prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, pageURLs(server, 5))

	require.Len(t, rep.Responses, 5)
	// Burst of one, then one every 50ms.
	assert.GreaterOrEqual(t, rep.TotalTime, 190*time.Millisecond)
}

func TestRun_EmptyURLList(t *testing.T) {
	cfg := testConfig()
	rep := prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, nil)

	require.NotNil(t, rep)
	assert.Empty(t, rep.Responses)
	assert.Zero(t, rep.Dropped)
	assert.Equal(t, cfg.SitemapURL, rep.SitemapURL)
	assert.GreaterOrEqual(t, rep.TotalTime, time.Duration(0))
}

func TestRun_TimeoutBecomes408(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.RequestTimeout = 50 * time.Millisecond
	cfg.Retries = 1
	rep := prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, []string{server.URL + "/slow"})

	require.Len(t, rep.Responses, 1)
	o := rep.Responses[0]
	assert.Equal(t, report.StatusTimeout, o.Status)
	assert.Equal(t, report.CategoryTimeout, o.Category)
	assert.Equal(t, 2, o.Attempts, "transport failures are retried")
	assert.Equal(t, server.URL+"/slow", o.URL)
	assert.Zero(t, o.BodySize)
}

func TestRun_ConnectionFailureBecomes502(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	cfg := testConfig()
	rep := prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, []string{addr + "/gone"})

	require.Len(t, rep.Responses, 1)
	assert.Equal(t, report.StatusConnectionError, rep.Responses[0].Status)
	assert.NotEmpty(t, rep.Responses[0].Error)
}

func TestRun_MalformedRequestBecomes400(t *testing.T) {
	cfg := testConfig()
	rep := prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, []string{"http://exa mple.com/"})

	require.Len(t, rep.Responses, 1)
	assert.Equal(t, report.StatusBadRequest, rep.Responses[0].Status)
	assert.Equal(t, report.CategoryInvalidRequest, rep.Responses[0].Category)
}

func TestRun_CacheBusterAppliedOnce(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.RawQuery)
		n := len(queries)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.AppendTimestamp = true
	cfg.Retries = 1
	rep := prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, []string{server.URL + "/page?lang=en"})

	require.Len(t, rep.Responses, 1)
	assert.True(t, rep.BypassCaching)
	require.Len(t, queries, 2)
	assert.Regexp(t, regexp.MustCompile(`^lang=en&ts=\d{10}$`), queries[0])
	assert.Equal(t, queries[0], queries[1], "the same cache buster is reused across retries")
}

func TestRun_RequestHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.UserAgent = "probe-test/1.0"
	cfg.BasicAuth = "alice:secret"
	cfg.Headers = []string{"X-Env: staging"}
	prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, []string{server.URL})

	require.NotNil(t, got)
	assert.Equal(t, "probe-test/1.0", got.Get("User-Agent"))
	assert.Equal(t, "staging", got.Get("X-Env"))
	assert.Equal(t, "Basic YWxpY2U6c2VjcmV0", got.Get("Authorization"))
}

func TestRun_CustomAuthorizationOverridesBasicAuth(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.BasicAuth = "alice:secret"
	cfg.Headers = []string{"Authorization: Bearer token123"}
	prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, []string{server.URL})

	assert.Equal(t, "Bearer token123", got)
}

func TestRun_Redirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "new home")
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	t.Run("not followed", func(t *testing.T) {
		cfg := testConfig()
		rep := prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, []string{server.URL + "/old"})
		require.Len(t, rep.Responses, 1)
		assert.Equal(t, http.StatusMovedPermanently, rep.Responses[0].Status)
		assert.Equal(t, server.URL+"/old", rep.Responses[0].URL)
	})

	t.Run("followed", func(t *testing.T) {
		cfg := testConfig()
		cfg.FollowRedirects = true
		rep := prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, []string{server.URL + "/old"})
		require.Len(t, rep.Responses, 1)
		assert.Equal(t, http.StatusOK, rep.Responses[0].Status)
		assert.Equal(t, server.URL+"/new", rep.Responses[0].URL)
		assert.Equal(t, int64(len("new home")), rep.Responses[0].BodySize)
	})

	t.Run("loop", func(t *testing.T) {
		cfg := testConfig()
		cfg.FollowRedirects = true
		rep := prober.New(cfg, nil).Run(context.Background(), cfg.SitemapURL, []string{server.URL + "/loop"})
		require.Len(t, rep.Responses, 1)
		assert.Equal(t, report.StatusBadRequest, rep.Responses[0].Status)
		assert.Equal(t, report.CategoryRedirectLoop, rep.Responses[0].Category)
	})
}

type recordingPersister struct {
	mu    sync.Mutex
	saved map[string]string
}

func (p *recordingPersister) Persist(rawURL string, body []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saved == nil {
		p.saved = make(map[string]string)
	}
	p.saved[rawURL] = string(body)
}

// panicTransport panics for requests whose path matches, and delegates the
// rest to the default transport.
type panicTransport struct{ path string }

func (t panicTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Path == t.path {
		panic("transport exploded")
	}
	return http.DefaultTransport.RoundTrip(req)
}

func TestRun_PersistsReceivedBodies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		_, _ = fmt.Fprintf(w, "body of %s", r.URL.Path)
	}))
	defer server.Close()
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	store := &recordingPersister{}
	cfg := testConfig()
	urls := []string{server.URL + "/a", server.URL + "/missing", deadURL + "/x"}
	rep := prober.New(cfg, nil, prober.WithPersister(store)).Run(context.Background(), cfg.SitemapURL, urls)

	require.Len(t, rep.Responses, 3)
	assert.Equal(t, "body of /a", store.saved[server.URL+"/a"])
	assert.Contains(t, store.saved, server.URL+"/missing", "error pages still produced a body")
	assert.NotContains(t, store.saved, deadURL+"/x")
}

func TestRun_PanicDropsOnlyThatURL(t *testing.T) {
	server, _ := countingServer(t, http.StatusOK)
	logger, hook := test.NewNullLogger()

	cfg := testConfig()
	cfg.Concurrency = 1
	client := &http.Client{Transport: panicTransport{path: "/page-1"}}
	rep := prober.New(cfg, nil, prober.WithClient(client), prober.WithLogger(logger)).
		Run(context.Background(), cfg.SitemapURL, pageURLs(server, 3))

	assert.Len(t, rep.Responses, 2, "the gate slot must be released after a panic")
	assert.Equal(t, 1, rep.Dropped)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["url"] == server.URL+"/page-1" {
			warned = true
			assert.Contains(t, e.Data[logrus.ErrorKey].(error).Error(), "transport exploded")
		}
	}
	assert.True(t, warned, "dropped URL must be logged")
}

func TestRun_CanceledUnitsAreDropped(t *testing.T) {
	server, calls := countingServer(t, http.StatusOK)

	cfg := testConfig()
	cfg.Concurrency = 5
	cfg.RateLimit = config.RateLimit{Requests: 1, Per: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	rep := prober.New(cfg, nil).Run(ctx, cfg.SitemapURL, pageURLs(server, 3))

	assert.Len(t, rep.Responses, 1, "only the burst token is granted")
	assert.Equal(t, 2, rep.Dropped)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRun_ProgressEvents(t *testing.T) {
	server, _ := countingServer(t, http.StatusOK, http.StatusOK, http.StatusInternalServerError)

	cfg := testConfig()
	cfg.Concurrency = 1
	cfg.RateLimit = config.RateLimit{Requests: 1000, Per: time.Second}
	events := make(chan prober.ProgressEvent, 100)
	urls := pageURLs(server, 3)
	prober.New(cfg, events).Run(context.Background(), cfg.SitemapURL, urls)
	close(events)

	counts := make(map[prober.EventKind]int)
	var last prober.ProgressEvent
	for evt := range events {
		counts[evt.Kind]++
		if evt.Kind == prober.EventFinished {
			require.NotNil(t, evt.Outcome)
			if evt.Completed > last.Completed {
				last = evt
			}
		}
	}
	assert.Equal(t, 3, counts[prober.EventStarted])
	assert.Equal(t, 3, counts[prober.EventRateLimited])
	assert.Equal(t, 3, counts[prober.EventFetching])
	assert.Equal(t, 3, counts[prober.EventFinished])
	assert.Equal(t, 3, last.Completed)
	assert.Equal(t, 3, last.Total)
	assert.Equal(t, 1, last.Errors)
}

func TestRun_TruncatedBodyKeepsStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("short"))
	}))
	defer server.Close()

	store := &recordingPersister{}
	cfg := testConfig()
	cfg.Retries = 2
	rep := prober.New(cfg, nil, prober.WithPersister(store)).
		Run(context.Background(), cfg.SitemapURL, []string{server.URL + "/page"})

	require.Len(t, rep.Responses, 1)
	out := rep.Responses[0]
	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, server.URL+"/page", out.URL)
	assert.Empty(t, out.Category)
	assert.Empty(t, out.Error)
	assert.LessOrEqual(t, out.BodySize, int64(len("short")))
	assert.Equal(t, int32(1), calls.Load(), "a received 200 is not retried")
	assert.Equal(t, report.ExitOK, rep.ExitStatus(report.NoThreshold))
	assert.Contains(t, store.saved, server.URL+"/page")
}

type panickingPersister struct{}

func (panickingPersister) Persist(string, []byte) { panic("disk on fire") }

func TestRun_PersisterPanicKeepsOutcome(t *testing.T) {
	server, _ := countingServer(t, http.StatusOK)
	logger, hook := test.NewNullLogger()

	cfg := testConfig()
	rep := prober.New(cfg, nil, prober.WithPersister(panickingPersister{}), prober.WithLogger(logger)).
		Run(context.Background(), cfg.SitemapURL, pageURLs(server, 2))

	assert.Len(t, rep.Responses, 2)
	assert.Zero(t, rep.Dropped)

	var warned int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "Persisting response body failed" {
			warned++
		}
	}
	assert.Equal(t, 2, warned)
}

package prober

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lukemcguire/siteprobe/config"
	"github.com/lukemcguire/siteprobe/urlutil"
)

// MaxRedirects is the redirect limit when redirects are followed.
const MaxRedirects = 10

// NewClient builds the HTTP client shared by every fetch unit. It sends the
// configured user agent, basic auth and custom headers on each request, and
// either follows up to MaxRedirects redirects or returns the redirect
// response itself. The per-attempt timeout is applied by the caller's
// context, not by the client.
func NewClient(cfg config.Config) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.MaxIdleConnsPerHost = max(cfg.Concurrency, 2)
	base.ResponseHeaderTimeout = cfg.RequestTimeout

	return &http.Client{
		Transport:     newHeaderTransport(base, cfg),
		CheckRedirect: redirectPolicy(cfg.FollowRedirects),
	}
}

func redirectPolicy(follow bool) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if !follow {
			return http.ErrUseLastResponse
		}
		if len(via) >= MaxRedirects {
			return fmt.Errorf("stopped after %d redirects", MaxRedirects)
		}
		return nil
	}
}

// headerTransport decorates outgoing requests. Credentials are only sent to
// the host the redirect chain started on.
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
	username  string
	password  string
	headers   http.Header
}

func newHeaderTransport(base http.RoundTripper, cfg config.Config) *headerTransport {
	t := &headerTransport{
		base:      base,
		userAgent: cfg.UserAgent,
		headers:   cfg.HeaderMap(),
	}
	if cfg.BasicAuth != "" {
		t.username, t.password = splitBasicAuth(cfg.BasicAuth)
	}
	return t
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	sameOrigin := urlutil.SameHost(originURL(req), req.URL.String())
	if t.username != "" && sameOrigin {
		req.SetBasicAuth(t.username, t.password)
	}
	// Custom headers win over basic auth and the user agent.
	for name, values := range t.headers {
		if name == "Authorization" && !sameOrigin {
			continue
		}
		req.Header[name] = values
	}
	if !sameOrigin {
		req.Header.Del("Authorization")
	}

	return t.base.RoundTrip(req)
}

// originURL walks back through the redirect chain to the first request.
func originURL(req *http.Request) string {
	for req.Response != nil && req.Response.Request != nil {
		req = req.Response.Request
	}
	return req.URL.String()
}

func splitBasicAuth(val string) (user, pass string) {
	user, pass, _ = strings.Cut(val, ":")
	return user, pass
}

// attemptTimeout returns the per-attempt deadline, falling back to the
// default when unset.
func attemptTimeout(cfg config.Config) time.Duration {
	if cfg.RequestTimeout <= 0 {
		return config.DefaultRequestTimeout
	}
	return cfg.RequestTimeout
}

// Package sitemap turns a sitemap URL into the sorted, deduplicated list of
// page URLs it references. It follows sitemap indexes, decompresses gzip
// documents and accepts a robots.txt URL as an entry point.
package sitemap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/errgroup"

	"github.com/lukemcguire/siteprobe/urlutil"
)

// ErrNotSitemap is returned when the root document is neither a sitemap
// index nor a URL set, or a robots.txt lists no sitemaps.
var ErrNotSitemap = errors.New("the sitemap does not contain any URLs")

// Defaults for NewResolver.
const (
	DefaultMaxDepth    = 5
	DefaultParallelism = 4
	DefaultTimeout     = 30 * time.Second
)

// Resolver fetches and walks sitemaps.
type Resolver struct {
	client      *http.Client
	log         logrus.FieldLogger
	maxDepth    int
	parallelism int
	timeout     time.Duration
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithMaxDepth limits how many levels of nested sitemap indexes are followed
// below the root.
func WithMaxDepth(n int) Option {
	return func(r *Resolver) { r.maxDepth = n }
}

// WithParallelism sets how many referenced sitemaps are fetched at once.
func WithParallelism(n int) Option {
	return func(r *Resolver) { r.parallelism = max(n, 1) }
}

// WithTimeout bounds each document fetch.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// NewResolver creates a Resolver. A nil log discards everything.
func NewResolver(client *http.Client, log logrus.FieldLogger, opts ...Option) *Resolver {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	r := &Resolver{
		client:      client,
		log:         log,
		maxDepth:    DefaultMaxDepth,
		parallelism: DefaultParallelism,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns every page URL reachable from sitemapURL, sorted and
// deduplicated.
//
// Failing to fetch or recognize the root document is fatal. A referenced
// sitemap that is missing or malformed is logged and skipped, so the result
// may be empty without an error.
func (r *Resolver) Resolve(ctx context.Context, sitemapURL string) ([]string, error) {
	w := &walk{
		Resolver: r,
		root:     sitemapURL,
		seen:     map[string]struct{}{sitemapURL: {}},
	}

	var pending []string
	if isRobotsURL(sitemapURL) {
		roots, err := r.robotsSitemaps(ctx, sitemapURL)
		if err != nil {
			return nil, err
		}
		pending = w.unseen(roots)
	} else {
		body, err := r.fetch(ctx, sitemapURL)
		if err != nil {
			return nil, fmt.Errorf("unable to fetch sitemap: %w", err)
		}
		doc, err := Parse(bytes.NewReader(body))
		if doc.Kind == KindUnknown {
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrNotSitemap, sitemapURL, err)
			}
			return nil, fmt.Errorf("%w: %s", ErrNotSitemap, sitemapURL)
		}
		if err != nil {
			r.log.WithError(err).WithField("url", sitemapURL).Warn("Sitemap is truncated, using the entries read so far")
		}
		r.log.WithFields(logrus.Fields{"url": sitemapURL, "kind": doc.Kind, "entries": len(doc.Locs)}).Debug("Fetched root sitemap")
		pending = w.add(sitemapURL, doc)
	}

	for depth := 1; len(pending) > 0; depth++ {
		if depth > r.maxDepth {
			r.log.WithFields(logrus.Fields{"depth": depth, "skipped": len(pending)}).Warn("Sitemap indexes nested too deeply, ignoring the rest")
			break
		}
		next, err := w.level(ctx, pending)
		if err != nil {
			return nil, err
		}
		pending = next
	}

	if w.foreign > 0 {
		r.log.WithFields(logrus.Fields{"sitemap": sitemapURL, "count": w.foreign}).Warn("Sitemap lists URLs on other hosts")
	}

	slices.Sort(w.pages)
	return slices.Compact(w.pages), nil
}

// walk holds the state of one Resolve call.
type walk struct {
	*Resolver
	root string

	mu      sync.Mutex
	seen    map[string]struct{} // sitemap documents already queued
	pages   []string
	foreign int
}

// level fetches one layer of referenced sitemaps and returns the sitemaps
// they reference in turn.
func (w *walk) level(ctx context.Context, sitemaps []string) ([]string, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallelism)

	var (
		mu   sync.Mutex
		next []string
	)
	for _, sm := range sitemaps {
		g.Go(func() error {
			doc, ok := w.load(ctx, sm)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !ok {
				return nil
			}
			children := w.add(sm, doc)
			mu.Lock()
			next = append(next, children...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve sitemaps: %w", err)
	}
	return next, nil
}

// load fetches and parses a referenced sitemap. Failures are logged and
// reported as !ok.
func (w *walk) load(ctx context.Context, sm string) (Document, bool) {
	log := w.log.WithField("url", sm)

	body, err := w.fetch(ctx, sm)
	if ctx.Err() != nil {
		return Document{}, false
	}
	if err != nil {
		log.WithError(err).Warn("The referenced sitemap is missing")
		return Document{}, false
	}
	doc, err := Parse(bytes.NewReader(body))
	if doc.Kind == KindUnknown {
		log.WithError(err).Warn("The referenced document is not a sitemap")
		return Document{}, false
	}
	if err != nil {
		log.WithError(err).Warn("Sitemap is truncated, using the entries read so far")
	}
	log.WithFields(logrus.Fields{"kind": doc.Kind, "entries": len(doc.Locs)}).Debug("Fetched sitemap")
	return doc, true
}

// add records the pages of a URL set, or returns the unseen sitemaps of an
// index. Relative locations are resolved against the document's own URL.
func (w *walk) add(docURL string, doc Document) []string {
	locs := make([]string, 0, len(doc.Locs))
	for _, loc := range doc.Locs {
		abs, err := urlutil.ResolveReference(docURL, loc)
		if err != nil || !urlutil.IsHTTPScheme(abs) {
			w.log.WithFields(logrus.Fields{"sitemap": docURL, "loc": loc}).Warn("Skipping invalid sitemap location")
			continue
		}
		locs = append(locs, abs)
	}

	if doc.Kind == KindIndex {
		return w.unseen(locs)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, u := range locs {
		if !urlutil.SameHost(w.root, u) {
			w.foreign++
		}
	}
	w.pages = append(w.pages, locs...)
	return nil
}

// unseen marks sitemaps as queued and returns those not queued before.
// Index cycles end here.
func (w *walk) unseen(sitemaps []string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []string
	for _, sm := range sitemaps {
		if _, ok := w.seen[sm]; ok {
			continue
		}
		w.seen[sm] = struct{}{}
		out = append(out, sm)
	}
	return out
}

// robotsSitemaps reads the Sitemap: lines of a robots.txt file.
func (r *Resolver) robotsSitemaps(ctx context.Context, robotsURL string) ([]string, error) {
	body, err := r.fetch(ctx, robotsURL)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch robots.txt: %w", err)
	}

	robots, err := robotstxt.FromStatusAndBytes(http.StatusOK, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt %s: %w", robotsURL, err)
	}
	if len(robots.Sitemaps) == 0 {
		return nil, fmt.Errorf("%w: no Sitemap entries in %s", ErrNotSitemap, robotsURL)
	}

	var roots []string
	for _, sm := range robots.Sitemaps {
		abs, err := urlutil.ResolveReference(robotsURL, sm)
		if err != nil || !urlutil.IsHTTPScheme(abs) {
			r.log.WithField("loc", sm).Warn("Skipping invalid Sitemap entry in robots.txt")
			continue
		}
		roots = append(roots, abs)
	}
	r.log.WithFields(logrus.Fields{"url": robotsURL, "sitemaps": len(roots)}).Debug("Read sitemaps from robots.txt")
	return roots, nil
}

func isRobotsURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Path, "/robots.txt")
}

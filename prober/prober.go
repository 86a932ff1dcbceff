// Package prober fetches every URL of a sitemap under a shared concurrency
// gate and rate limiter, retrying transient failures, and assembles the
// outcomes into a report.Report.
package prober

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lukemcguire/siteprobe/config"
	"github.com/lukemcguire/siteprobe/report"
	"github.com/lukemcguire/siteprobe/storage"
)

// Prober runs fetch units. The client, gate and limiter are shared by every
// unit of a run; construct a new Prober per run.
type Prober struct {
	cfg        config.Config
	client     *http.Client
	gate       *Gate
	limiter    *RateLimiter
	persister  storage.Persister
	log        logrus.FieldLogger
	progressCh chan<- ProgressEvent
}

// Option customizes a Prober.
type Option func(*Prober)

// WithClient replaces the client built by NewClient.
func WithClient(c *http.Client) Option {
	return func(p *Prober) { p.client = c }
}

// WithPersister stores every received body.
func WithPersister(s storage.Persister) Option {
	return func(p *Prober) { p.persister = s }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Prober) { p.log = l }
}

// New creates a Prober for cfg. progressCh is optional; pass nil to disable
// progress events. The channel is never closed by the Prober.
func New(cfg config.Config, progressCh chan<- ProgressEvent, opts ...Option) *Prober {
	p := &Prober{
		cfg:        cfg,
		gate:       NewGate(cfg.Concurrency),
		limiter:    NewRateLimiter(cfg.RateLimit),
		progressCh: progressCh,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = NewClient(cfg)
	}
	if p.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		p.log = l
	}
	return p
}

// Run launches one fetch unit per URL and waits for all of them. Outcomes
// appear in completion order. Units that fail before producing an outcome
// are left out and counted in Report.Dropped.
func (p *Prober) Run(ctx context.Context, sitemapURL string, urls []string) *report.Report {
	start := time.Now()
	rep := &report.Report{
		RunID:            uuid.NewString(),
		SitemapURL:       sitemapURL,
		ConcurrencyLimit: p.gate.Size(),
		RateLimit:        p.limiter.Limit(),
		BypassCaching:    p.cfg.AppendTimestamp,
		StartedAt:        start,
		Responses:        make([]report.Outcome, 0, len(urls)),
	}

	p.log.WithFields(logrus.Fields{
		"run_id":      rep.RunID,
		"urls":        len(urls),
		"concurrency": rep.ConcurrencyLimit,
		"rate_limit":  rep.RateLimit.String(),
	}).Info("Probe starting")

	var (
		mu        sync.Mutex
		completed int
		errCount  int
		g         errgroup.Group
	)
	for _, rawURL := range urls {
		g.Go(func() error {
			p.emit(ctx, ProgressEvent{Kind: EventStarted, URL: rawURL})

			out, err := p.fetch(ctx, rawURL)

			mu.Lock()
			completed++
			evt := ProgressEvent{URL: rawURL, Completed: completed, Total: len(urls)}
			if err != nil {
				rep.Dropped++
				evt.Kind = EventDropped
				evt.Error = err.Error()
			} else {
				rep.Responses = append(rep.Responses, out)
				if out.IsError() {
					errCount++
				}
				evt.Kind = EventFinished
				evt.Outcome = &out
			}
			evt.Errors = errCount
			mu.Unlock()

			if err != nil {
				p.log.WithField("url", rawURL).WithError(err).Warn("Dropped URL without outcome")
			}
			p.emit(ctx, evt)
			return nil
		})
	}
	_ = g.Wait()

	rep.TotalTime = time.Since(start)
	p.log.WithFields(logrus.Fields{
		"run_id":    rep.RunID,
		"responses": len(rep.Responses),
		"dropped":   rep.Dropped,
		"elapsed":   rep.TotalTime.Round(time.Millisecond),
	}).Info("Probe finished")
	return rep
}

// emit sends evt unless no channel is configured. Sends block until the
// consumer reads or ctx is done.
func (p *Prober) emit(ctx context.Context, evt ProgressEvent) {
	if p.progressCh == nil {
		return
	}
	select {
	case p.progressCh <- evt:
	case <-ctx.Done():
	}
}

// tryEmit sends evt only if the consumer can take it right away.
func (p *Prober) tryEmit(evt ProgressEvent) {
	if p.progressCh == nil {
		return
	}
	select {
	case p.progressCh <- evt:
	default:
	}
}

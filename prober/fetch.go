package prober

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lukemcguire/siteprobe/report"
	"github.com/lukemcguire/siteprobe/urlutil"
)

// fetch runs one fetch unit for rawURL. Network failures are folded into the
// outcome; an error is returned only when the gate or limiter could not be
// passed or the unit panicked, and the URL is then dropped.
func (p *Prober) fetch(ctx context.Context, rawURL string) (out report.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicToError(r, err)
		}
	}()

	target := rawURL
	if p.cfg.AppendTimestamp {
		target = urlutil.AppendCacheBuster(rawURL)
	}

	out, body, err := p.gated(ctx, target)
	if err != nil {
		return report.Outcome{}, err
	}

	if body != nil && p.persister != nil {
		p.persist(out.URL, body)
	}
	return out, nil
}

// persist hands body to the persister. A panicking persister is logged and
// does not affect the outcome.
func (p *Prober) persist(url string, body []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("url", url).WithError(panicToError(r, nil)).Warn("Persisting response body failed")
		}
	}()
	p.persister.Persist(url, body)
}

// gated holds a gate slot for the limiter wait and every attempt. The slot
// is released on all exit paths, panics included. Events sent while the slot
// is held never wait for the consumer.
func (p *Prober) gated(ctx context.Context, target string) (report.Outcome, []byte, error) {
	if err := p.gate.Acquire(ctx); err != nil {
		return report.Outcome{}, nil, err
	}
	defer p.gate.Release()

	if p.limiter != nil {
		p.tryEmit(ProgressEvent{Kind: EventRateLimited, URL: target})
		if err := p.limiter.Wait(ctx); err != nil {
			return report.Outcome{}, nil, err
		}
	}

	out, body := p.retryAttempts(ctx, target, func(n int) (report.Outcome, []byte) {
		p.tryEmit(ProgressEvent{Kind: EventFetching, URL: target, Attempt: n})
		return p.attempt(ctx, target)
	})
	return out, body, nil
}

// attempt performs a single GET with a fresh timeout. The body is returned
// whenever an HTTP response was received; if reading it fails the status is
// kept and the body holds whatever arrived.
func (p *Prober) attempt(ctx context.Context, target string) (report.Outcome, []byte) {
	attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout(p.cfg))
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return p.transportFailure(target, time.Since(start), err), nil
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return p.transportFailure(target, time.Since(start), err), nil
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.log.WithField("url", target).WithError(closeErr).Debug("Close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"url":    finalURL,
			"status": resp.StatusCode,
			"read":   len(body),
		}).WithError(err).Debug("Response body incomplete")
	}

	p.log.WithFields(logrus.Fields{
		"url":     finalURL,
		"status":  resp.StatusCode,
		"elapsed": elapsed,
	}).Debug("Fetched")

	return report.Outcome{
		URL:      finalURL,
		Status:   resp.StatusCode,
		Elapsed:  elapsed,
		BodySize: int64(len(body)),
	}, body
}

func (p *Prober) transportFailure(target string, elapsed time.Duration, err error) report.Outcome {
	cat := report.ClassifyError(err)
	out := report.Outcome{
		URL:      target,
		Status:   report.SyntheticStatus(cat),
		Elapsed:  elapsed,
		Error:    err.Error(),
		Category: cat,
	}
	p.log.WithFields(logrus.Fields{
		"url":      target,
		"status":   out.Status,
		"category": cat,
	}).WithError(err).Debug("Request failed")
	return out
}

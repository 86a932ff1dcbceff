package prober

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/lukemcguire/siteprobe/report"
)

// maxRetryInterval caps the exponential backoff between attempts.
const maxRetryInterval = 30 * time.Second

// errRetryable marks an attempt whose outcome qualifies for another try.
var errRetryable = errors.New("retryable outcome")

// newBackOff builds the retry schedule: immediate retries when delay is
// zero, otherwise exponential growth from delay. The schedule stops after
// retries extra attempts or when ctx is done.
func newBackOff(ctx context.Context, retries int, delay time.Duration) backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if delay > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = delay
		eb.MaxInterval = max(maxRetryInterval, delay)
		eb.MaxElapsedTime = 0
		b = eb
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(retries, 0))), ctx)
}

// shouldRetry reports whether an outcome may be retried: server errors and
// transport failures are, real 4xx responses never are.
func shouldRetry(o report.Outcome) bool {
	return o.IsTransportFailure() || o.IsServerError()
}

// attemptFunc performs one attempt and returns its outcome and, when an HTTP
// response was received, its body.
type attemptFunc func(attempt int) (report.Outcome, []byte)

// retryAttempts runs attempt until it yields a non-retryable outcome or the
// backoff schedule is exhausted. Only the last attempt is returned.
func (p *Prober) retryAttempts(ctx context.Context, rawURL string, attempt attemptFunc) (report.Outcome, []byte) {
	var (
		last report.Outcome
		body []byte
		n    int
	)

	op := func() error {
		n++
		last, body = attempt(n)
		last.Attempts = n
		if shouldRetry(last) {
			return fmt.Errorf("%w: status %d", errRetryable, last.Status)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		p.log.WithFields(logrus.Fields{
			"url":     rawURL,
			"attempt": n,
			"wait":    wait,
		}).Debugf("Retrying: %v", err)
	}

	// The error only signals exhaustion or cancellation; last holds the
	// outcome either way.
	_ = backoff.RetryNotify(op, newBackOff(ctx, p.cfg.Retries, p.cfg.RetryDelay), notify)
	return last, body
}

// Package report holds the outcome of a probe run: one Outcome per page, the
// Report that collects them, the statistics derived from it and the writers
// that export it.
package report

import (
	"time"

	"github.com/lukemcguire/siteprobe/config"
)

// Synthetic status codes assigned to transport failures so they flow through
// the same classification as real HTTP responses.
const (
	StatusTimeout         = 408
	StatusConnectionError = 502
	StatusBadRequest      = 400
)

// Outcome is the terminal result of probing one URL, after retries.
type Outcome struct {
	URL      string        // Final URL after redirects, or the requested URL on failure
	Status   int           // HTTP status, or a synthetic code for transport failures
	Elapsed  time.Duration // Duration of the last attempt only
	BodySize int64         // Response body length in bytes, 0 on failure
	Attempts int           // Number of attempts made, including the first

	// Set only for transport failures.
	Error    string
	Category ErrorCategory
}

// IsSuccess reports a 2xx status.
func (o Outcome) IsSuccess() bool { return o.Status >= 200 && o.Status < 300 }

// IsRedirect reports a 3xx status.
func (o Outcome) IsRedirect() bool { return o.Status >= 300 && o.Status < 400 }

// IsClientError reports a 4xx status, synthetic 400 and 408 included.
func (o Outcome) IsClientError() bool { return o.Status >= 400 && o.Status < 500 }

// IsServerError reports a 5xx status, synthetic 502 included.
func (o Outcome) IsServerError() bool { return o.Status >= 500 && o.Status < 600 }

// IsError reports a client or server error.
func (o Outcome) IsError() bool { return o.IsClientError() || o.IsServerError() }

// IsTransportFailure reports whether the status was synthesized because no
// HTTP response was received.
func (o Outcome) IsTransportFailure() bool { return o.Category != "" }

// Report is the immutable result of one run. Responses are in completion
// order; consumers must not rely on any ordering.
type Report struct {
	RunID            string
	SitemapURL       string
	ConcurrencyLimit int
	RateLimit        config.RateLimit
	BypassCaching    bool
	StartedAt        time.Time
	TotalTime        time.Duration
	Responses        []Outcome

	// Dropped counts URLs whose fetch unit never produced an outcome.
	Dropped int
}

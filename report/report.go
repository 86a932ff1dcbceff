package report

import (
	"cmp"
	"slices"
	"time"

	"github.com/lukemcguire/siteprobe/config"
)

// NoThreshold marks an unset slow threshold. Zero is a valid threshold and
// counts every response as slow.
const NoThreshold = config.NoThreshold

// Exit statuses derived from a finished run.
const (
	ExitOK    = 0
	ExitError = 1
	ExitSlow  = 2
)

// ErrorResponses returns every 4xx/5xx outcome, synthetic codes included,
// ordered by status descending then URL ascending.
func (r *Report) ErrorResponses() []Outcome {
	var out []Outcome
	for _, o := range r.Responses {
		if o.IsError() {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b Outcome) int {
		if c := cmp.Compare(b.Status, a.Status); c != 0 {
			return c
		}
		return cmp.Compare(a.URL, b.URL)
	})
	return out
}

// SlowestResponses returns outcomes whose elapsed time is at least
// threshold, slowest first, truncated to limit entries. A negative
// threshold returns nothing.
func (r *Report) SlowestResponses(threshold time.Duration, limit int) []Outcome {
	if threshold < 0 || limit <= 0 {
		return nil
	}
	var out []Outcome
	for _, o := range r.Responses {
		if o.Elapsed >= threshold {
			out = append(out, o)
		}
	}
	slices.SortStableFunc(out, func(a, b Outcome) int {
		return cmp.Compare(b.Elapsed, a.Elapsed)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ExitStatus maps the run onto a process exit code. Errors take precedence
// over slow responses; slowness is only considered when a threshold is set.
func (r *Report) ExitStatus(threshold time.Duration) int {
	for _, o := range r.Responses {
		if o.IsError() {
			return ExitError
		}
	}
	if threshold < 0 {
		return ExitOK
	}
	for _, o := range r.Responses {
		if o.Elapsed > threshold {
			return ExitSlow
		}
	}
	return ExitOK
}

package prober

import "github.com/lukemcguire/siteprobe/report"

// EventKind identifies a step in a fetch unit's lifecycle.
type EventKind int

const (
	EventStarted     EventKind = iota // Unit launched, waiting for the gate
	EventRateLimited                  // Holding a gate slot, waiting on the limiter
	EventFetching                     // Attempt in flight
	EventFinished                     // Outcome recorded
	EventDropped                      // Unit failed before producing an outcome
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventRateLimited:
		return "rate-limited"
	case EventFetching:
		return "fetching"
	case EventFinished:
		return "finished"
	case EventDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// ProgressEvent reports progress for a single URL.
type ProgressEvent struct {
	Kind    EventKind
	URL     string
	Attempt int             // Set for EventFetching
	Outcome *report.Outcome // Set for EventFinished
	Error   string          // Set for EventDropped

	// Running totals, set for EventFinished and EventDropped.
	Completed int
	Total     int
	Errors    int
}

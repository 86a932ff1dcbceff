package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RateLimit is a request budget per time window, e.g. 100 per minute.
// The zero value means unlimited.
type RateLimit struct {
	Requests int
	Per      time.Duration
}

// IsZero reports whether no rate limit is configured.
func (r RateLimit) IsZero() bool { return r.Requests <= 0 || r.Per <= 0 }

// Interval is the steady-state spacing between two admitted requests.
func (r RateLimit) Interval() time.Duration {
	if r.IsZero() {
		return 0
	}
	return r.Per / time.Duration(r.Requests)
}

// PerMinute normalizes the limit to requests per minute.
func (r RateLimit) PerMinute() float64 {
	if r.IsZero() {
		return 0
	}
	return float64(r.Requests) * float64(time.Minute) / float64(r.Per)
}

// String renders the limit the way ParseRateLimit accepts it.
func (r RateLimit) String() string {
	if r.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d/%s", r.Requests, shortDuration(r.Per))
}

// ParseRateLimit accepts "N/duration" (e.g. "100/1m", "10/10s", "1000/1h")
// or a bare "N", which means N requests per minute. A missing count on the
// duration ("60/m") is read as 1.
func ParseRateLimit(s string) (RateLimit, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RateLimit{}, nil
	}

	countPart, perPart, hasPer := strings.Cut(s, "/")
	count, err := strconv.Atoi(strings.TrimSpace(countPart))
	if err != nil || count < 1 {
		return RateLimit{}, fmt.Errorf("invalid rate limit format %q: request count must be a positive integer", s)
	}
	if !hasPer {
		return RateLimit{Requests: count, Per: time.Minute}, nil
	}

	perPart = strings.TrimSpace(perPart)
	if perPart != "" && (perPart[0] < '0' || perPart[0] > '9') {
		perPart = "1" + perPart
	}
	per, err := time.ParseDuration(perPart)
	if err != nil || per <= 0 {
		return RateLimit{}, fmt.Errorf("invalid rate limit format %q: expected N/duration like 100/1m", s)
	}
	return RateLimit{Requests: count, Per: per}, nil
}

func shortDuration(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return strconv.FormatInt(int64(d/time.Hour), 10) + "h"
	case d%time.Minute == 0:
		return strconv.FormatInt(int64(d/time.Minute), 10) + "m"
	default:
		return d.String()
	}
}

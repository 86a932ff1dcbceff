package report

import (
	"math"
	"slices"
	"time"
)

// Statistics is derived from a Report on demand and never stored.
type Statistics struct {
	ResponseTime ResponseTimeStats
	StatusCodes  StatusCodeStats
	Performance  PerformanceStats
}

// ResponseTimeStats summarizes the elapsed time of every outcome.
type ResponseTimeStats struct {
	Mean   time.Duration
	Median time.Duration
	Min    time.Duration
	Max    time.Duration
	P90    time.Duration
	P95    time.Duration
	P99    time.Duration
	StdDev time.Duration
}

// StatusCodeStats holds rates as percentages in [0, 100].
type StatusCodeStats struct {
	SuccessRate  float64
	ErrorRate    float64
	RedirectRate float64
	Counts       map[int]int
}

// PerformanceStats covers throughput, slowness and body sizes.
type PerformanceStats struct {
	TotalRequests     int
	RequestsPerSecond float64
	SlowPercentage    float64
	SlowThresholdSet  bool
	MinSize           int64
	AvgSize           int64
	MaxSize           int64
}

// ComputeStatistics aggregates r. A negative slowThreshold leaves the slow
// percentage at zero and SlowThresholdSet false.
func ComputeStatistics(r *Report, slowThreshold time.Duration) Statistics {
	stats := Statistics{
		StatusCodes: StatusCodeStats{Counts: make(map[int]int)},
		Performance: PerformanceStats{SlowThresholdSet: slowThreshold >= 0},
	}

	n := len(r.Responses)
	if n == 0 {
		return stats
	}

	times := make([]time.Duration, n)
	var sumSecs float64
	var totalSize int64
	var success, errs, redirect, slow int
	minSize, maxSize := r.Responses[0].BodySize, r.Responses[0].BodySize
	for i, o := range r.Responses {
		times[i] = o.Elapsed
		sumSecs += o.Elapsed.Seconds()
		totalSize += o.BodySize
		minSize = min(minSize, o.BodySize)
		maxSize = max(maxSize, o.BodySize)

		stats.StatusCodes.Counts[o.Status]++
		switch {
		case o.IsSuccess():
			success++
		case o.IsError():
			errs++
		case o.IsRedirect():
			redirect++
		}
		if slowThreshold >= 0 && o.Elapsed > slowThreshold {
			slow++
		}
	}
	slices.Sort(times)

	mean := sumSecs / float64(n)
	var variance float64
	for _, t := range times {
		d := t.Seconds() - mean
		variance += d * d
	}
	variance /= float64(n)

	stats.ResponseTime = ResponseTimeStats{
		Mean:   secondsToDuration(mean),
		Median: times[n/2],
		Min:    times[0],
		Max:    times[n-1],
		P90:    percentile(times, 0.90),
		P95:    percentile(times, 0.95),
		P99:    percentile(times, 0.99),
		StdDev: secondsToDuration(math.Sqrt(variance)),
	}

	stats.StatusCodes.SuccessRate = percent(success, n)
	stats.StatusCodes.ErrorRate = percent(errs, n)
	stats.StatusCodes.RedirectRate = percent(redirect, n)

	stats.Performance.TotalRequests = n
	if secs := r.TotalTime.Seconds(); secs > 0 {
		stats.Performance.RequestsPerSecond = float64(n) / secs
	}
	stats.Performance.SlowPercentage = percent(slow, n)
	stats.Performance.MinSize = minSize
	stats.Performance.AvgSize = totalSize / int64(n)
	stats.Performance.MaxSize = maxSize

	return stats
}

// percentile picks the element at floor(n*p) from sorted, clamped to the last
// index.
func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func percent(count, total int) float64 {
	return float64(count) / float64(total) * 100
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

package report

import (
	"fmt"
	"io"
	"time"
)

// PrintPlain writes an uncolored summary of r to w: totals, the error list
// and, when a threshold is set, the slowest responses. It is used when
// stdout is not a terminal.
func PrintPlain(w io.Writer, r *Report, slowThreshold time.Duration, slowNum int) {
	writef := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }
	stats := ComputeStatistics(r, slowThreshold)

	writef("Statistics for %s\n", r.SitemapURL)
	writef("  Requests: %d in %s (%.2f/sec)\n",
		stats.Performance.TotalRequests, r.TotalTime.Round(time.Millisecond), stats.Performance.RequestsPerSecond)
	writef("  Success: %.2f%%  Errors: %.2f%%  Redirects: %.2f%%\n",
		stats.StatusCodes.SuccessRate, stats.StatusCodes.ErrorRate, stats.StatusCodes.RedirectRate)
	writef("  Response time: avg %dms, median %dms, p95 %dms, max %dms\n",
		stats.ResponseTime.Mean.Milliseconds(), stats.ResponseTime.Median.Milliseconds(),
		stats.ResponseTime.P95.Milliseconds(), stats.ResponseTime.Max.Milliseconds())
	if r.Dropped > 0 {
		writef("  Dropped: %d\n", r.Dropped)
	}

	errs := r.ErrorResponses()
	if len(errs) == 0 {
		writef("No error responses\n")
	} else {
		writef("Error Responses:\n")
		for _, o := range errs {
			writef("  %d: %s %dms", o.Status, o.URL, o.Elapsed.Milliseconds())
			if o.Error != "" {
				writef(" (%s)", o.Error)
			}
			writef("\n")
		}
	}

	if slowThreshold < 0 {
		return
	}
	slow := r.SlowestResponses(slowThreshold, slowNum)
	if len(slow) == 0 {
		return
	}
	writef("Slow Responses (>=%s):\n", slowThreshold)
	for _, o := range slow {
		writef("  %d: %s %dms\n", o.Status, o.URL, o.Elapsed.Milliseconds())
	}
}

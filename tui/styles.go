package tui

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lukemcguire/siteprobe/report"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true)
	successStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	headerStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	categoryStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	dimStyle         = lipgloss.NewStyle().Faint(true)
	cellStyle        = lipgloss.NewStyle().Padding(0, 1)
	statusErrorStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("9"))
	statusSlowStyle  = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("11"))
)

// RenderSummary produces a Lip Gloss styled report of a finished run: base
// metrics, status codes, response times and sizes, then the error and slow
// response listings.
func RenderSummary(r *report.Report, slowThreshold time.Duration, slowNum int) string {
	if r == nil {
		return errorStyle.Render("No results available.")
	}

	stats := report.ComputeStatistics(r, slowThreshold)
	var builder strings.Builder
	section := func(title string, t *table.Table) {
		builder.WriteString(categoryStyle.Render("## " + title))
		builder.WriteString("\n")
		builder.WriteString(t.Render())
		builder.WriteString("\n\n")
	}

	builder.WriteString(titleStyle.Render("Statistics for " + r.SitemapURL))
	builder.WriteString("\n\n")

	rateLimit := "Not Set"
	if !r.RateLimit.IsZero() {
		rateLimit = r.RateLimit.String()
	}
	base := [][]string{
		{"Total Requests", strconv.Itoa(stats.Performance.TotalRequests)},
		{"Total Time", r.TotalTime.Round(time.Millisecond).String()},
		{"Requests/sec", fmt.Sprintf("%.2f", stats.Performance.RequestsPerSecond)},
		{"Concurrency Limit", strconv.Itoa(r.ConcurrencyLimit)},
		{"Rate Limit", rateLimit},
		{"Bypass Caching", strconv.FormatBool(r.BypassCaching)},
	}
	if r.Dropped > 0 {
		base = append(base, []string{"Dropped URLs", strconv.Itoa(r.Dropped)})
	}
	section("Base Metrics", keyValueTable(base))

	codes := [][]string{
		{"Success Rate", percent(stats.StatusCodes.SuccessRate)},
		{"Error Rate", percent(stats.StatusCodes.ErrorRate)},
		{"Redirect Rate", percent(stats.StatusCodes.RedirectRate)},
	}
	for _, code := range slices.Sorted(maps.Keys(stats.StatusCodes.Counts)) {
		codes = append(codes, []string{"HTTP " + strconv.Itoa(code), strconv.Itoa(stats.StatusCodes.Counts[code])})
	}
	section("Status Codes", keyValueTable(codes))

	rt := stats.ResponseTime
	section("Response Times", keyValueTable([][]string{
		{"Average", ms(rt.Mean)},
		{"Median", ms(rt.Median)},
		{"Min", ms(rt.Min)},
		{"Max", ms(rt.Max)},
		{"90th Percentile", ms(rt.P90)},
		{"95th Percentile", ms(rt.P95)},
		{"99th Percentile", ms(rt.P99)},
		{"Std Deviation", ms(rt.StdDev)},
	}))

	slowShare := "Not Set"
	if stats.Performance.SlowThresholdSet {
		slowShare = percent(stats.Performance.SlowPercentage)
	}
	section("Performance", keyValueTable([][]string{
		{"Slow Requests", slowShare},
		{"Avg Response Size", report.FormatSize(stats.Performance.AvgSize)},
		{"Min Response Size", report.FormatSize(stats.Performance.MinSize)},
		{"Max Response Size", report.FormatSize(stats.Performance.MaxSize)},
	}))

	errs := r.ErrorResponses()
	if len(errs) == 0 {
		builder.WriteString(successStyle.Render("No error responses!"))
		builder.WriteString("\n")
	} else {
		rows := make([][]string, 0, len(errs))
		for _, o := range errs {
			status := strconv.Itoa(o.Status)
			if o.Category != "" {
				status += " " + report.FormatCategory(o.Category)
			}
			rows = append(rows, []string{status, o.URL, ms(o.Elapsed)})
		}
		section(fmt.Sprintf("Error Responses (%d)", len(errs)), listTable(rows, statusErrorStyle))
	}

	if slow := r.SlowestResponses(slowThreshold, slowNum); len(slow) > 0 {
		rows := make([][]string, 0, len(slow))
		for _, o := range slow {
			rows = append(rows, []string{strconv.Itoa(o.Status), o.URL, ms(o.Elapsed)})
		}
		section(fmt.Sprintf("Slow Responses (>= %s)", slowThreshold), listTable(rows, statusSlowStyle))
	}

	builder.WriteString(dimStyle.Render(fmt.Sprintf(
		"Probed %d URLs in %s",
		stats.Performance.TotalRequests,
		r.TotalTime.Round(time.Millisecond),
	)))
	builder.WriteString("\n")

	return builder.String()
}

func keyValueTable(rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("Metric", "Value").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		}).
		Rows(rows...)
}

func listTable(rows [][]string, statusStyle lipgloss.Style) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("Status", "URL", "Time").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			if col == 0 {
				return statusStyle
			}
			return cellStyle
		}).
		Rows(rows...)
}

func ms(d time.Duration) string { return strconv.FormatInt(d.Milliseconds(), 10) + "ms" }

func percent(v float64) string { return fmt.Sprintf("%.2f%%", v) }

package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"slices"
	"strconv"
	"time"
)

//go:embed report.html.tmpl
var htmlTemplate string

var htmlReport = template.Must(template.New("report").Funcs(template.FuncMap{
	"ms":          func(d time.Duration) int64 { return d.Milliseconds() },
	"pct":         func(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) + "%" },
	"rps":         func(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) },
	"kb":          FormatSize,
	"statusClass": statusClass,
}).Parse(htmlTemplate))

const (
	histogramBuckets = 10
	chartHeight      = 160
	chartBarWidth    = 40
)

type htmlBar struct {
	Label string
	Count int
	X     int
	Y     int
	H     int
	Class string
}

type htmlView struct {
	Report      *Report
	Stats       Statistics
	Generated   string
	RateLimit   string
	Threshold   string
	Histogram   []htmlBar
	StatusBars  []htmlBar
	ChartWidth  int
	StatusWidth int
	ChartHeight int
	Responses   []Outcome
}

// WriteHTML renders a self-contained HTML page with summary cards, charts
// and a sortable table of every response.
func WriteHTML(w io.Writer, r *Report, slowThreshold time.Duration) error {
	stats := ComputeStatistics(r, slowThreshold)

	view := htmlView{
		Report:      r,
		Stats:       stats,
		Generated:   r.StartedAt.Format(time.RFC3339),
		RateLimit:   "No",
		Threshold:   "Not Set",
		Histogram:   histogram(r.Responses, stats.ResponseTime.Min, stats.ResponseTime.Max),
		StatusBars:  statusBars(stats.StatusCodes.Counts),
		ChartWidth:  histogramBuckets * chartBarWidth,
		ChartHeight: chartHeight,
		Responses:   r.Responses,
	}
	view.StatusWidth = max(len(view.StatusBars), 1) * chartBarWidth
	if !r.RateLimit.IsZero() {
		view.RateLimit = r.RateLimit.String()
	}
	if slowThreshold >= 0 {
		view.Threshold = slowThreshold.String()
	}

	if err := htmlReport.Execute(w, view); err != nil {
		return fmt.Errorf("write html output: %w", err)
	}
	return nil
}

// histogram buckets elapsed times into equal-width ranges between lo and hi.
func histogram(responses []Outcome, lo, hi time.Duration) []htmlBar {
	if len(responses) == 0 {
		return nil
	}
	width := (hi - lo) / histogramBuckets
	if width <= 0 {
		width = 1
	}
	counts := make([]int, histogramBuckets)
	for _, o := range responses {
		idx := int((o.Elapsed - lo) / width)
		counts[min(max(idx, 0), histogramBuckets-1)]++
	}

	bars := make([]htmlBar, histogramBuckets)
	peak := slices.Max(counts)
	for i, c := range counts {
		start := lo + time.Duration(i)*width
		bars[i] = scaleBar(i, c, peak, fmt.Sprintf("%dms", start.Milliseconds()), "")
	}
	return bars
}

func statusBars(counts map[int]int) []htmlBar {
	codes := make([]int, 0, len(counts))
	peak := 0
	for code, c := range counts {
		codes = append(codes, code)
		peak = max(peak, c)
	}
	slices.Sort(codes)

	bars := make([]htmlBar, len(codes))
	for i, code := range codes {
		bars[i] = scaleBar(i, counts[code], peak, strconv.Itoa(code), statusClass(code))
	}
	return bars
}

func scaleBar(i, count, peak int, label, class string) htmlBar {
	h := 0
	if peak > 0 {
		h = count * chartHeight / peak
	}
	return htmlBar{
		Label: label,
		Count: count,
		X:     i * chartBarWidth,
		Y:     chartHeight - h,
		H:     h,
		Class: class,
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "s5xx"
	case code >= 400:
		return "s4xx"
	case code >= 300:
		return "s3xx"
	default:
		return "s2xx"
	}
}

// FormatSize renders a byte count in kilobytes with two decimals.
func FormatSize(n int64) string {
	return strconv.FormatFloat(float64(n)/1024, 'f', 2, 64) + " KB"
}

package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type jsonReport struct {
	Config     jsonConfig     `json:"config"`
	Statistics jsonStatistics `json:"statistics"`
	Responses  []jsonResponse `json:"responses"`
}

type jsonConfig struct {
	RunID            string  `json:"runId"`
	SitemapURL       string  `json:"sitemapUrl"`
	ConcurrencyLimit int     `json:"concurrencyLimit"`
	RateLimit        *string `json:"rateLimit"`
	ElapsedTime      int64   `json:"elapsedTime"`
	BypassCaching    bool    `json:"bypassCaching"`
	Dropped          int     `json:"dropped"`
}

type jsonStatistics struct {
	Performance  jsonPerformance  `json:"performance"`
	ResponseTime jsonResponseTime `json:"responseTime"`
	StatusCode   jsonStatusCode   `json:"statusCode"`
}

type jsonPerformance struct {
	TotalRequests         int      `json:"totalRequests"`
	RequestsPerSecond     float64  `json:"requestsPerSecond"`
	SlowRequestPercentage *float64 `json:"slowRequestPercentage"`
	AvgResponseSizeBytes  int64    `json:"avgResponseSizeBytes"`
	MinResponseSizeBytes  int64    `json:"minResponseSizeBytes"`
	MaxResponseSizeBytes  int64    `json:"maxResponseSizeBytes"`
}

type jsonResponseTime struct {
	AvgMs    int64 `json:"avgMs"`
	MedianMs int64 `json:"medianMs"`
	MinMs    int64 `json:"minMs"`
	MaxMs    int64 `json:"maxMs"`
	P90Ms    int64 `json:"p90Ms"`
	P95Ms    int64 `json:"p95Ms"`
	P99Ms    int64 `json:"p99Ms"`
	StdDevMs int64 `json:"stdDevMs"`
}

type jsonStatusCode struct {
	SuccessRatePercentage  float64        `json:"successRatePercentage"`
	ErrorRatePercentage    float64        `json:"errorRatePercentage"`
	RedirectRatePercentage float64        `json:"redirectRatePercentage"`
	Counts                 map[string]int `json:"counts"`
}

type jsonResponse struct {
	URL          string `json:"url"`
	ResponseTime int64  `json:"responseTime"`
	ResponseSize int64  `json:"responseSize"`
	StatusCode   int    `json:"statusCode"`
	Attempts     int    `json:"attempts,omitempty"`
	Error        string `json:"error,omitempty"`
}

// WriteJSON writes the report, its statistics and every response as an
// indented JSON document. Durations are whole milliseconds. The slow
// percentage is null when no threshold was set.
func WriteJSON(w io.Writer, r *Report, slowThreshold time.Duration) error {
	stats := ComputeStatistics(r, slowThreshold)

	doc := jsonReport{
		Config: jsonConfig{
			RunID:            r.RunID,
			SitemapURL:       r.SitemapURL,
			ConcurrencyLimit: r.ConcurrencyLimit,
			ElapsedTime:      r.TotalTime.Milliseconds(),
			BypassCaching:    r.BypassCaching,
			Dropped:          r.Dropped,
		},
		Statistics: jsonStatistics{
			Performance: jsonPerformance{
				TotalRequests:        stats.Performance.TotalRequests,
				RequestsPerSecond:    stats.Performance.RequestsPerSecond,
				AvgResponseSizeBytes: stats.Performance.AvgSize,
				MinResponseSizeBytes: stats.Performance.MinSize,
				MaxResponseSizeBytes: stats.Performance.MaxSize,
			},
			ResponseTime: jsonResponseTime{
				AvgMs:    stats.ResponseTime.Mean.Milliseconds(),
				MedianMs: stats.ResponseTime.Median.Milliseconds(),
				MinMs:    stats.ResponseTime.Min.Milliseconds(),
				MaxMs:    stats.ResponseTime.Max.Milliseconds(),
				P90Ms:    stats.ResponseTime.P90.Milliseconds(),
				P95Ms:    stats.ResponseTime.P95.Milliseconds(),
				P99Ms:    stats.ResponseTime.P99.Milliseconds(),
				StdDevMs: stats.ResponseTime.StdDev.Milliseconds(),
			},
			StatusCode: jsonStatusCode{
				SuccessRatePercentage:  stats.StatusCodes.SuccessRate,
				ErrorRatePercentage:    stats.StatusCodes.ErrorRate,
				RedirectRatePercentage: stats.StatusCodes.RedirectRate,
				Counts:                 make(map[string]int, len(stats.StatusCodes.Counts)),
			},
		},
		Responses: make([]jsonResponse, 0, len(r.Responses)),
	}
	if !r.RateLimit.IsZero() {
		rl := r.RateLimit.String()
		doc.Config.RateLimit = &rl
	}
	if stats.Performance.SlowThresholdSet {
		pct := stats.Performance.SlowPercentage
		doc.Statistics.Performance.SlowRequestPercentage = &pct
	}
	for code, count := range stats.StatusCodes.Counts {
		doc.Statistics.StatusCode.Counts[strconv.Itoa(code)] = count
	}
	for _, o := range r.Responses {
		doc.Responses = append(doc.Responses, jsonResponse{
			URL:          o.URL,
			ResponseTime: o.Elapsed.Milliseconds(),
			ResponseSize: o.BodySize,
			StatusCode:   o.Status,
			Attempts:     o.Attempts,
			Error:        o.Error,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("write json output: %w", err)
	}
	return nil
}

// WriteCSV writes one row per response. The header row is always present.
// Column order: URL, Response Time (ms), Response Size, Status Code
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)

	header := []string{"URL", "Response Time (ms)", "Response Size", "Status Code"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, o := range r.Responses {
		record := []string{
			o.URL,
			strconv.FormatInt(o.Elapsed.Milliseconds(), 10),
			strconv.FormatInt(o.BodySize, 10),
			strconv.Itoa(o.Status),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record for %s: %w", o.URL, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv output: %w", err)
	}
	return nil
}

// WriteFile creates path, including missing parent directories, and hands
// the open file to write.
func WriteFile(path string, write func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close report file: %w", cerr)
		}
	}()
	return write(f)
}

// Package export publishes a finished report to external systems: a
// Prometheus textfile for the node exporter and an Elasticsearch index.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lukemcguire/siteprobe/report"
)

const namespace = "siteprobe"

// Buckets for the response time histogram, in seconds.
var responseTimeBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// NewRegistry builds a registry holding the metrics of one run. Every series
// carries a sitemap label so several probes can share a textfile directory.
func NewRegistry(r *report.Report, stats report.Statistics) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	wrapped := prometheus.WrapRegistererWith(prometheus.Labels{"sitemap": r.SitemapURL}, reg)

	responses := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "responses",
		Help:      "Number of responses by status code in the last run.",
	}, []string{"code"})
	for code, n := range stats.StatusCodes.Counts {
		responses.WithLabelValues(strconv.Itoa(code)).Set(float64(n))
	}

	responseTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "response_time_seconds",
		Help:      "Response times of the last run.",
		Buckets:   responseTimeBuckets,
	})
	for _, o := range r.Responses {
		responseTime.Observe(o.Elapsed.Seconds())
	}

	quantiles := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "response_time_quantile_seconds",
		Help:      "Response time quantiles of the last run.",
	}, []string{"quantile"})
	rt := stats.ResponseTime
	quantiles.WithLabelValues("0.5").Set(rt.Median.Seconds())
	quantiles.WithLabelValues("0.9").Set(rt.P90.Seconds())
	quantiles.WithLabelValues("0.95").Set(rt.P95.Seconds())
	quantiles.WithLabelValues("0.99").Set(rt.P99.Seconds())

	collectors := []prometheus.Collector{
		responses,
		responseTime,
		quantiles,
		gauge("requests", "URLs probed in the last run.", float64(stats.Performance.TotalRequests)),
		gauge("dropped_urls", "URLs that produced no outcome in the last run.", float64(r.Dropped)),
		gauge("run_duration_seconds", "Wall-clock duration of the last run.", r.TotalTime.Seconds()),
		gauge("requests_per_second", "Throughput of the last run.", stats.Performance.RequestsPerSecond),
		gauge("success_ratio", "Share of 2xx responses in the last run.", stats.StatusCodes.SuccessRate/100),
		gauge("error_ratio", "Share of 4xx and 5xx responses in the last run.", stats.StatusCodes.ErrorRate/100),
		gauge("last_run_timestamp_seconds", "Start time of the last run.", float64(r.StartedAt.Unix())),
	}
	if stats.Performance.SlowThresholdSet {
		collectors = append(collectors,
			gauge("slow_ratio", "Share of responses above the slow threshold.", stats.Performance.SlowPercentage/100))
	}

	for _, c := range collectors {
		if err := wrapped.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return reg, nil
}

func gauge(name, help string, v float64) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	g.Set(v)
	return g
}

// WriteMetrics writes the run's metrics to path in the Prometheus text
// format. The file is replaced atomically.
func WriteMetrics(path string, r *report.Report, stats report.Statistics) error {
	reg, err := NewRegistry(r, stats)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Package main provides the siteprobe CLI entrypoint.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lukemcguire/siteprobe/config"
)

// exitCode carries a non-zero process exit status through cobra.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

// Exit status for a run stopped by the user.
const exitInterrupted = 130

var (
	cfg = config.Default()

	configPath     string
	rateLimit      string
	requestTimeout int
	slowThreshold  float64
)

var rootCmd = &cobra.Command{
	Use:     "siteprobe [flags] <sitemap-url>",
	Short:   "Probe every page listed in a sitemap and report response statistics",
	Version: config.Version,
	Long: `siteprobe fetches a sitemap (or a robots.txt listing sitemaps), follows
sitemap indexes, requests every page under a concurrency and rate limit, and
reports response time and status code statistics.

Exit status is 0 when every page responded, 1 when any page returned a 4xx/5xx
status or the run failed, and 2 when pages were slower than --slow-threshold.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := buildConfig(&cfg, args[0], cmd.Flags().Changed); err != nil {
			return err
		}
		logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		code, err := run(cmd.Context(), cfg, logger, os.Stdout)
		if err != nil {
			return err
		}
		if code != 0 {
			return exitCode(code)
		}
		return nil
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "", "Path to a YAML config file (default "+config.DefaultConfigFile+" if present)")
	f.BoolVar(&cfg.JSON, "json", false, "Print the JSON report to stdout instead of the text report")

	f.IntVarP(&cfg.Concurrency, config.FlagConcurrency, "c", cfg.Concurrency, "Maximum number of concurrent requests")
	f.StringVarP(&rateLimit, config.FlagRateLimit, "r", "", "Maximum request rate, e.g. 100/1m or 5/1s")
	f.IntVarP(&requestTimeout, config.FlagRequestTimeout, "t", int(cfg.RequestTimeout.Seconds()), "Per-request timeout in seconds")
	f.IntVar(&cfg.Retries, config.FlagRetries, cfg.Retries, "Retries for 5xx responses and connection failures")
	f.DurationVar(&cfg.RetryDelay, config.FlagRetryDelay, cfg.RetryDelay, "Initial delay between retries, doubled on each attempt")
	f.StringVarP(&cfg.UserAgent, config.FlagUserAgent, "a", cfg.UserAgent, "User-Agent header sent with every request")
	f.StringVar(&cfg.BasicAuth, config.FlagBasicAuth, "", "Basic auth credentials as username:password (or $"+config.EnvBasicAuth+")")
	f.StringArrayVarP(&cfg.Headers, config.FlagHeader, "H", nil, `Extra request header "Name: value" (repeatable)`)
	f.BoolVar(&cfg.AppendTimestamp, config.FlagAppendTimestamp, false, "Append a random timestamp query parameter to bypass caches")
	f.BoolVar(&cfg.FollowRedirects, config.FlagFollowRedirects, false, "Follow redirects (up to 10)")

	f.StringVarP(&cfg.OutputDir, config.FlagOutputDir, "o", "", "Store every response body under this directory")
	f.Float64VarP(&slowThreshold, config.FlagSlowThreshold, "s", 0, "Seconds above which a response counts as slow")
	f.IntVar(&cfg.SlowNum, config.FlagSlowNum, cfg.SlowNum, "Maximum number of slow responses to list")
	f.StringVar(&cfg.ReportPath, config.FlagReportPath, "", "Write a CSV report to this path")
	f.StringVar(&cfg.ReportPathJSON, config.FlagReportPathJSON, "", "Write a JSON report to this path")
	f.StringVar(&cfg.ReportPathHTML, config.FlagReportPathHTML, "", "Write an HTML report to this path")
	f.StringVar(&cfg.MetricsPath, config.FlagMetricsPath, "", "Write Prometheus metrics in textfile format to this path")

	f.StringVar(&cfg.Elasticsearch.URL, config.FlagESURL, "", "Index every outcome into this Elasticsearch cluster")
	f.StringVar(&cfg.Elasticsearch.Index, config.FlagESIndex, cfg.Elasticsearch.Index, "Elasticsearch index, may contain %{+yyyy.MM.dd}")
	f.StringVar(&cfg.Elasticsearch.Username, config.FlagESUsername, "", "Elasticsearch username (password from $"+config.EnvESPassword+")")

	f.StringVar(&cfg.LogLevel, config.FlagLogLevel, cfg.LogLevel, "Log level: debug, info, warn or error")
	f.StringVar(&cfg.LogFormat, config.FlagLogFormat, cfg.LogFormat, "Log format: text or json")
}

// buildConfig merges the config file, the converted flags and the
// environment into c and validates the result. Flags bound directly to c
// are already set; changed reports which of them were given explicitly.
func buildConfig(c *config.Config, sitemapURL string, changed func(string) bool) error {
	c.SitemapURL = sitemapURL

	file, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if err := c.ApplyFile(file, changed); err != nil {
		return err
	}

	if changed(config.FlagRateLimit) {
		rl, err := config.ParseRateLimit(rateLimit)
		if err != nil {
			return err
		}
		c.RateLimit = rl
	}
	if changed(config.FlagRequestTimeout) {
		c.RequestTimeout = time.Duration(requestTimeout) * time.Second
	}
	if changed(config.FlagSlowThreshold) {
		d, err := config.SecondsToDuration(slowThreshold)
		if err != nil {
			return fmt.Errorf("--%s: %w", config.FlagSlowThreshold, err)
		}
		c.SlowThreshold = d
	}

	c.ApplyEnv(os.Getenv)
	if err := c.ExpandPaths(); err != nil {
		return err
	}
	return c.Validate()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var code exitCode
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		// Validation joins several errors; keep the message on one line.
		fmt.Fprintf(os.Stderr, "Error: %s\n", strings.ReplaceAll(err.Error(), "\n", "; "))
		os.Exit(1)
	}
}

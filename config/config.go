// Package config defines the run configuration for siteprobe: defaults,
// validation, the YAML config file and the small parsers used by CLI flags.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Version is reported in the default user agent.
const Version = "0.6.0"

// Defaults applied before the config file and flags are merged.
const (
	DefaultConcurrency    = 4
	DefaultRequestTimeout = 10 * time.Second
	DefaultSlowNum        = 100
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultConfigFile     = ".siteprobe.yaml"
	DefaultESIndex        = "siteprobe"

	MaxConcurrency    = 100
	MaxRetries        = 10
	MaxRequestTimeout = 60 * time.Second
)

// DefaultUserAgent is sent with every request unless overridden.
var DefaultUserAgent = "Mozilla/5.0 (compatible; Siteprobe/" + Version + ")"

// NoThreshold marks an unset slow threshold. Zero is a valid threshold.
const NoThreshold time.Duration = -1

// Config is the immutable snapshot of settings for one run.
type Config struct {
	SitemapURL string

	Concurrency     int           // Simultaneous in-flight fetches (1-100)
	RateLimit       RateLimit     // Zero value disables rate limiting
	RequestTimeout  time.Duration // Per-attempt timeout
	Retries         int           // Extra attempts for 5xx and transport failures (0-10)
	RetryDelay      time.Duration // Initial backoff between attempts; 0 retries immediately
	UserAgent       string
	BasicAuth       string   // "user:pass", empty to disable
	Headers         []string // Extra "Name: value" request headers
	AppendTimestamp bool     // Cache-busting query parameter
	FollowRedirects bool

	OutputDir     string        // Persist response bodies here when set
	SlowThreshold time.Duration // NoThreshold when unset
	SlowNum       int           // Max entries in the slow-response listing

	ReportPath     string // CSV
	ReportPathJSON string
	ReportPathHTML string
	MetricsPath    string // Prometheus textfile
	JSON           bool   // Print the JSON report to stdout

	Elasticsearch ElasticsearchConfig

	LogLevel  string
	LogFormat string
}

// ElasticsearchConfig configures the optional outcome export.
type ElasticsearchConfig struct {
	URL      string
	Index    string
	Username string
	Password string
}

// Enabled reports whether the export should run.
func (e ElasticsearchConfig) Enabled() bool { return e.URL != "" }

// Default returns a Config populated with the built-in defaults.
func Default() Config {
	return Config{
		Concurrency:    DefaultConcurrency,
		RequestTimeout: DefaultRequestTimeout,
		UserAgent:      DefaultUserAgent,
		SlowThreshold:  NoThreshold,
		SlowNum:        DefaultSlowNum,
		Elasticsearch:  ElasticsearchConfig{Index: DefaultESIndex},
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
	}
}

// HasSlowThreshold reports whether a slow threshold was configured.
func (c Config) HasSlowThreshold() bool { return c.SlowThreshold >= 0 }

// HeaderMap parses Headers into an http.Header. Validate has already checked
// the format, so malformed entries are skipped here.
func (c Config) HeaderMap() http.Header {
	h := make(http.Header, len(c.Headers))
	for _, raw := range c.Headers {
		name, value, err := ParseHeader(raw)
		if err != nil {
			continue
		}
		h.Add(name, value)
	}
	return h
}

// Validate checks ranges and formats and returns every problem found.
func (c Config) Validate() error {
	var errs []error

	if c.SitemapURL == "" {
		errs = append(errs, errors.New("sitemap URL is required"))
	}
	if c.Concurrency < 1 || c.Concurrency > MaxConcurrency {
		errs = append(errs, fmt.Errorf("concurrency limit must be between 1 and %d, got %d", MaxConcurrency, c.Concurrency))
	}
	if c.RequestTimeout < time.Second || c.RequestTimeout > MaxRequestTimeout {
		errs = append(errs, fmt.Errorf("request timeout must be between 1s and %s, got %s", MaxRequestTimeout, c.RequestTimeout))
	}
	if c.Retries < 0 || c.Retries > MaxRetries {
		errs = append(errs, fmt.Errorf("retries must be between 0 and %d, got %d", MaxRetries, c.Retries))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry delay must not be negative, got %s", c.RetryDelay))
	}
	if c.SlowNum < 1 {
		errs = append(errs, fmt.Errorf("slow-num must be at least 1, got %d", c.SlowNum))
	}
	if c.SlowThreshold < NoThreshold {
		errs = append(errs, fmt.Errorf("slow threshold must be >= 0, got %s", c.SlowThreshold))
	}
	if c.BasicAuth != "" {
		if err := ValidateBasicAuth(c.BasicAuth); err != nil {
			errs = append(errs, err)
		}
	}
	for _, h := range c.Headers {
		if _, _, err := ParseHeader(h); err != nil {
			errs = append(errs, err)
		}
	}
	if c.OutputDir != "" {
		if info, err := os.Stat(c.OutputDir); err == nil && !info.IsDir() {
			errs = append(errs, fmt.Errorf("output path %q is not a directory", c.OutputDir))
		}
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// ExpandPaths replaces a leading "~/" in every path setting with the user's
// home directory.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.OutputDir, &c.ReportPath, &c.ReportPathJSON, &c.ReportPathHTML, &c.MetricsPath} {
		expanded, err := ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// ExpandHome expands a leading "~" or "~/" in path.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// ValidateBasicAuth checks the "username:password" format with both parts
// non-empty.
func ValidateBasicAuth(val string) error {
	user, pass, ok := strings.Cut(val, ":")
	if !ok {
		return errors.New("invalid basic auth format: must be `username:password`")
	}
	if user == "" || pass == "" {
		return errors.New("invalid basic auth format: must be `username:password` with non-empty values")
	}
	return nil
}

// ParseHeader splits a "Name: value" header flag.
func ParseHeader(raw string) (name, value string, err error) {
	name, value, ok := strings.Cut(raw, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.ContainsAny(name, " \t") {
		return "", "", fmt.Errorf("invalid header %q: must be `Name: value`", raw)
	}
	return http.CanonicalHeaderKey(name), strings.TrimSpace(value), nil
}

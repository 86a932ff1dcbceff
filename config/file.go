package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned when an explicitly requested config file does
// not exist.
var ErrConfigNotFound = errors.New("config file not found")

// Flag names shared by the CLI and ApplyFile, so a value given on the
// command line always wins over the file.
const (
	FlagConcurrency     = "concurrency-limit"
	FlagRateLimit       = "rate-limit"
	FlagRequestTimeout  = "request-timeout"
	FlagRetries         = "retries"
	FlagRetryDelay      = "retry-delay"
	FlagUserAgent       = "user-agent"
	FlagBasicAuth       = "basic-auth"
	FlagHeader          = "header"
	FlagAppendTimestamp = "append-timestamp"
	FlagFollowRedirects = "follow-redirects"
	FlagOutputDir       = "output-dir"
	FlagSlowThreshold   = "slow-threshold"
	FlagSlowNum         = "slow-num"
	FlagReportPath      = "report-path"
	FlagReportPathJSON  = "report-path-json"
	FlagReportPathHTML  = "report-path-html"
	FlagMetricsPath     = "metrics-path"
	FlagESURL           = "elasticsearch-url"
	FlagESIndex         = "elasticsearch-index"
	FlagESUsername      = "elasticsearch-username"
	FlagLogLevel        = "log-level"
	FlagLogFormat       = "log-format"
)

// Environment variables consulted for secrets that should stay out of shell
// history and config files.
const (
	EnvBasicAuth  = "SITEPROBE_BASIC_AUTH"
	EnvESPassword = "SITEPROBE_ELASTICSEARCH_PASSWORD"
)

// File mirrors the YAML config file. Every field is optional; nil means
// "not set in the file".
type File struct {
	UserAgent        *string  `yaml:"user_agent"`
	ConcurrencyLimit *int     `yaml:"concurrency_limit"`
	RateLimit        *string  `yaml:"rate_limit"`
	RequestTimeout   *int     `yaml:"request_timeout"` // seconds
	Retries          *int     `yaml:"retries"`
	RetryDelay       *string  `yaml:"retry_delay"`
	SlowThreshold    *float64 `yaml:"slow_threshold"` // seconds
	SlowNum          *int     `yaml:"slow_num"`
	BasicAuth        *string  `yaml:"basic_auth"`
	Headers          []string `yaml:"headers"`
	FollowRedirects  *bool    `yaml:"follow_redirects"`
	AppendTimestamp  *bool    `yaml:"append_timestamp"`
	OutputDir        *string  `yaml:"output_dir"`
	ReportPath       *string  `yaml:"report_path"`
	ReportPathJSON   *string  `yaml:"report_path_json"`
	ReportPathHTML   *string  `yaml:"report_path_html"`
	MetricsPath      *string  `yaml:"metrics_path"`
	LogLevel         *string  `yaml:"log_level"`
	LogFormat        *string  `yaml:"log_format"`
	Elasticsearch    *ESFile  `yaml:"elasticsearch"`
}

// ESFile is the elasticsearch section of the config file.
type ESFile struct {
	URL      *string `yaml:"url"`
	Index    *string `yaml:"index"`
	Username *string `yaml:"username"`
	Password *string `yaml:"password"`
}

// LoadFile reads the config file at path. With an empty path it looks for
// DefaultConfigFile in the working directory and returns an empty File when
// there is none; an explicit path that does not exist is an error.
func LoadFile(path string) (*File, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if explicit {
				return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return &File{}, nil
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &f, nil
}

// ApplyFile copies values from f into c for every setting whose flag was not
// given on the command line. changed reports whether a flag was set
// explicitly; pass nil to let the file override everything.
func (c *Config) ApplyFile(f *File, changed func(flag string) bool) error {
	if f == nil {
		return nil
	}
	if changed == nil {
		changed = func(string) bool { return false }
	}
	use := func(flag string) bool { return !changed(flag) }

	if f.UserAgent != nil && use(FlagUserAgent) {
		c.UserAgent = *f.UserAgent
	}
	if f.ConcurrencyLimit != nil && use(FlagConcurrency) {
		c.Concurrency = *f.ConcurrencyLimit
	}
	if f.RateLimit != nil && use(FlagRateLimit) {
		rl, err := ParseRateLimit(*f.RateLimit)
		if err != nil {
			return fmt.Errorf("config file: %w", err)
		}
		c.RateLimit = rl
	}
	if f.RequestTimeout != nil && use(FlagRequestTimeout) {
		c.RequestTimeout = time.Duration(*f.RequestTimeout) * time.Second
	}
	if f.Retries != nil && use(FlagRetries) {
		c.Retries = *f.Retries
	}
	if f.RetryDelay != nil && use(FlagRetryDelay) {
		d, err := time.ParseDuration(*f.RetryDelay)
		if err != nil {
			return fmt.Errorf("config file: retry_delay: %w", err)
		}
		c.RetryDelay = d
	}
	if f.SlowThreshold != nil && use(FlagSlowThreshold) {
		d, err := SecondsToDuration(*f.SlowThreshold)
		if err != nil {
			return fmt.Errorf("config file: slow_threshold: %w", err)
		}
		c.SlowThreshold = d
	}
	if f.SlowNum != nil && use(FlagSlowNum) {
		c.SlowNum = *f.SlowNum
	}
	if f.BasicAuth != nil && use(FlagBasicAuth) {
		c.BasicAuth = *f.BasicAuth
	}
	if len(f.Headers) > 0 && use(FlagHeader) {
		c.Headers = append([]string(nil), f.Headers...)
	}
	if f.FollowRedirects != nil && use(FlagFollowRedirects) {
		c.FollowRedirects = *f.FollowRedirects
	}
	if f.AppendTimestamp != nil && use(FlagAppendTimestamp) {
		c.AppendTimestamp = *f.AppendTimestamp
	}
	setString(&c.OutputDir, f.OutputDir, use(FlagOutputDir))
	setString(&c.ReportPath, f.ReportPath, use(FlagReportPath))
	setString(&c.ReportPathJSON, f.ReportPathJSON, use(FlagReportPathJSON))
	setString(&c.ReportPathHTML, f.ReportPathHTML, use(FlagReportPathHTML))
	setString(&c.MetricsPath, f.MetricsPath, use(FlagMetricsPath))
	setString(&c.LogLevel, f.LogLevel, use(FlagLogLevel))
	setString(&c.LogFormat, f.LogFormat, use(FlagLogFormat))

	if es := f.Elasticsearch; es != nil {
		setString(&c.Elasticsearch.URL, es.URL, use(FlagESURL))
		setString(&c.Elasticsearch.Index, es.Index, use(FlagESIndex))
		setString(&c.Elasticsearch.Username, es.Username, use(FlagESUsername))
		setString(&c.Elasticsearch.Password, es.Password, true)
	}
	return nil
}

// ApplyEnv fills secrets from the environment when neither the command line
// nor the config file provided them.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if c.BasicAuth == "" {
		c.BasicAuth = getenv(EnvBasicAuth)
	}
	if c.Elasticsearch.Password == "" {
		c.Elasticsearch.Password = getenv(EnvESPassword)
	}
}

// SecondsToDuration converts a non-negative number of seconds, as used by
// the slow threshold flag, into a Duration.
func SecondsToDuration(seconds float64) (time.Duration, error) {
	if seconds < 0 {
		return 0, fmt.Errorf("value %v must be greater than or equal to 0", seconds)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func setString(dst *string, src *string, ok bool) {
	if src != nil && ok {
		*dst = *src
	}
}

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/lukemcguire/siteprobe/config"
	"github.com/lukemcguire/siteprobe/export"
	"github.com/lukemcguire/siteprobe/prober"
	"github.com/lukemcguire/siteprobe/report"
	"github.com/lukemcguire/siteprobe/sitemap"
	"github.com/lukemcguire/siteprobe/storage"
	"github.com/lukemcguire/siteprobe/tui"
)

// exportTimeout bounds the Elasticsearch export, which also runs after an
// interrupted probe.
const exportTimeout = 2 * time.Minute

// run resolves the sitemap, probes every page and writes the configured
// reports. It returns the process exit status; a non-nil error means the run
// could not complete.
func run(parent context.Context, cfg config.Config, logger *logrus.Logger, stdout io.Writer) (int, error) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	urls, err := resolve(ctx, cfg, logger)
	if err != nil {
		return 1, err
	}

	opts := []prober.Option{prober.WithLogger(logger)}
	if cfg.OutputDir != "" {
		opts = append(opts, prober.WithPersister(storage.NewDiskStore(cfg.OutputDir, logger)))
	}

	var (
		rep         *report.Report
		interrupted bool
	)
	if interactive(stdout, cfg) {
		rep, interrupted, err = runInteractive(ctx, cfg, logger, urls, opts)
		if err != nil {
			return 1, err
		}
		if rep == nil {
			return exitInterrupted, nil
		}
	} else {
		rep = prober.New(cfg, nil, opts...).Run(ctx, cfg.SitemapURL, urls)
		interrupted = ctx.Err() != nil
		if cfg.JSON {
			if err := report.WriteJSON(stdout, rep, cfg.SlowThreshold); err != nil {
				return 1, fmt.Errorf("write JSON report: %w", err)
			}
		} else {
			report.PrintPlain(stdout, rep, cfg.SlowThreshold, cfg.SlowNum)
		}
	}

	if err := writeOutputs(cfg, rep, logger); err != nil {
		return 1, err
	}
	if interrupted {
		logger.Warn("Run interrupted, report is partial")
		return exitInterrupted, nil
	}
	return rep.ExitStatus(cfg.SlowThreshold), nil
}

// resolve turns the configured sitemap URL into page URLs. Sitemap requests
// carry the same headers and credentials as page requests but always follow
// redirects.
func resolve(ctx context.Context, cfg config.Config, logger *logrus.Logger) ([]string, error) {
	sitemapCfg := cfg
	sitemapCfg.FollowRedirects = true
	sitemapCfg.AppendTimestamp = false

	resolver := sitemap.NewResolver(
		prober.NewClient(sitemapCfg),
		logger,
		sitemap.WithParallelism(cfg.Concurrency),
		sitemap.WithTimeout(max(sitemap.DefaultTimeout, cfg.RequestTimeout)),
	)
	urls, err := resolver.Resolve(ctx, cfg.SitemapURL)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{"sitemap": cfg.SitemapURL, "urls": len(urls)}).Info("Resolved sitemap")
	return urls, nil
}

func interactive(stdout io.Writer, cfg config.Config) bool {
	if cfg.JSON {
		return false
	}
	f, ok := stdout.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// runInteractive runs the probe behind the progress UI. Log output is held
// back while the UI owns the terminal. A nil report means the user quit
// before the run finished.
func runInteractive(ctx context.Context, cfg config.Config, logger *logrus.Logger, urls []string, opts []prober.Option) (*report.Report, bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var logBuf bytes.Buffer
	logger.SetOutput(&logBuf)
	defer func() {
		logger.SetOutput(os.Stderr)
		_, _ = os.Stderr.Write(logBuf.Bytes())
	}()

	progressCh := make(chan prober.ProgressEvent, 100)
	p := prober.New(cfg, progressCh, opts...)
	model := tui.NewModel(ctx, cancel, p, progressCh, tui.Options{
		SitemapURL:    cfg.SitemapURL,
		URLs:          urls,
		SlowThreshold: cfg.SlowThreshold,
		SlowNum:       cfg.SlowNum,
	})

	final, err := tea.NewProgram(model).Run()
	m, ok := final.(tui.Model)
	if !ok {
		if err != nil {
			return nil, false, fmt.Errorf("run progress UI: %w", err)
		}
		return nil, true, nil
	}
	if err != nil {
		logger.WithError(err).Debug("Progress UI stopped")
	}
	return m.Report(), m.Interrupted() || ctx.Err() != nil, nil
}

// writeOutputs writes every configured report file and export. All of them
// are attempted; the failures are joined.
func writeOutputs(cfg config.Config, rep *report.Report, logger *logrus.Logger) error {
	var errs []error
	write := func(kind, path string, fn func(io.Writer) error) {
		if path == "" {
			return
		}
		if err := report.WriteFile(path, fn); err != nil {
			errs = append(errs, fmt.Errorf("write %s report: %w", kind, err))
			return
		}
		logger.WithField("path", path).Infof("Wrote %s report", kind)
	}

	write("CSV", cfg.ReportPath, func(w io.Writer) error { return report.WriteCSV(w, rep) })
	write("JSON", cfg.ReportPathJSON, func(w io.Writer) error { return report.WriteJSON(w, rep, cfg.SlowThreshold) })
	write("HTML", cfg.ReportPathHTML, func(w io.Writer) error { return report.WriteHTML(w, rep, cfg.SlowThreshold) })

	if cfg.MetricsPath != "" {
		stats := report.ComputeStatistics(rep, cfg.SlowThreshold)
		if err := export.WriteMetrics(cfg.MetricsPath, rep, stats); err != nil {
			errs = append(errs, err)
		} else {
			logger.WithField("path", cfg.MetricsPath).Info("Wrote metrics")
		}
	}

	if cfg.Elasticsearch.Enabled() {
		if err := exportElasticsearch(cfg.Elasticsearch, rep, logger); err != nil {
			errs = append(errs, fmt.Errorf("elasticsearch export: %w", err))
		}
	}
	return errors.Join(errs...)
}

func exportElasticsearch(cfg config.ElasticsearchConfig, rep *report.Report, logger *logrus.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()

	exp, err := export.NewESExporter(cfg, logger)
	if err != nil {
		return err
	}
	_, err = exp.Export(ctx, rep)
	return err
}

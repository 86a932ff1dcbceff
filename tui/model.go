// Package tui provides the Bubble Tea terminal UI for siteprobe, displaying
// live probe progress and a styled report of the results.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lukemcguire/siteprobe/prober"
	"github.com/lukemcguire/siteprobe/report"
)

const maxBarWidth = 60

// Runner executes a probe run. *prober.Prober satisfies it.
type Runner interface {
	Run(ctx context.Context, sitemapURL string, urls []string) *report.Report
}

// Options describes the run shown by the model.
type Options struct {
	SitemapURL    string
	URLs          []string
	SlowThreshold time.Duration
	SlowNum       int
}

// Model is the Bubble Tea model for the probe TUI.
type Model struct {
	ctx        context.Context
	cancel     context.CancelFunc
	runner     Runner
	opts       Options
	spinner    spinner.Model
	bar        progress.Model
	progressCh <-chan prober.ProgressEvent

	completed   int
	total       int
	errors      int
	current     string
	interrupted bool
	quitting    bool
	done        bool
	report      *report.Report
	width       int
}

// NewModel creates a TUI model wired to the given runner and progress channel.
func NewModel(ctx context.Context, cancel context.CancelFunc, runner Runner, progressCh <-chan prober.ProgressEvent, opts Options) Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = maxBarWidth

	return Model{
		ctx:        ctx,
		cancel:     cancel,
		runner:     runner,
		opts:       opts,
		spinner:    spin,
		bar:        bar,
		progressCh: progressCh,
		total:      len(opts.URLs),
	}
}

// Init starts the spinner, the run and the progress listener concurrently.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startProbe(), waitForProgress(m.progressCh))
}

// startProbe returns a tea.Cmd that runs the prober and sends ProbeDoneMsg.
func (m Model) startProbe() tea.Cmd {
	return func() tea.Msg {
		return ProbeDoneMsg{Report: m.runner.Run(m.ctx, m.opts.SitemapURL, m.opts.URLs)}
	}
}

// Update handles messages from the Bubble Tea runtime.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// First press stops the run and waits for the partial report.
			if m.interrupted {
				m.quitting = true
				return m, tea.Quit
			}
			m.interrupted = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(min(msg.Width-4, maxBarWidth), 10)

	case ProgressMsg:
		evt := msg.Event
		switch evt.Kind {
		case prober.EventFetching:
			m.current = evt.URL
		case prober.EventFinished, prober.EventDropped:
			m.completed = max(m.completed, evt.Completed)
			m.errors = max(m.errors, evt.Errors)
			if evt.Total > 0 {
				m.total = evt.Total
			}
		}
		return m, waitForProgress(m.progressCh)

	case ProbeDoneMsg:
		m.done = true
		m.report = msg.Report
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the current TUI state.
func (m Model) View() string {
	if m.done && m.report != nil {
		return RenderSummary(m.report, m.opts.SlowThreshold, m.opts.SlowNum)
	}
	if m.done || m.quitting {
		return errorStyle.Render("No results available.") + "\n"
	}

	status := fmt.Sprintf("%s Probing... %d/%d URLs, %d errors", m.spinner.View(), m.completed, m.total, m.errors)
	if m.interrupted {
		status += "\n" + categoryStyle.Render("Stopping, waiting for requests in flight (press again to quit)")
	}
	return fmt.Sprintf("%s\n%s\n%s\n", status, m.bar.ViewAs(m.percent()), dimStyle.Render("  "+m.current))
}

func (m Model) percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.completed) / float64(m.total)
}

// Report returns the finished report, or nil if the run did not complete.
func (m Model) Report() *report.Report {
	return m.report
}

// Interrupted reports whether the user stopped the run early.
func (m Model) Interrupted() bool {
	return m.interrupted
}

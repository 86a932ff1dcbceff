package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/siteprobe/prober"
	"github.com/lukemcguire/siteprobe/report"
)

// ProgressMsg carries one prober event.
type ProgressMsg struct {
	Event prober.ProgressEvent
}

// ProbeDoneMsg signals the run has completed.
type ProbeDoneMsg struct {
	Report *report.Report
}

// waitForProgress returns a tea.Cmd that reads one event from the progress
// channel. A closed channel produces no message.
func waitForProgress(ch <-chan prober.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return nil
		}
		return ProgressMsg{Event: evt}
	}
}

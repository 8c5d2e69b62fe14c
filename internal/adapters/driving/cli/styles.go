package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// palette holds the output colours.
var palette = struct {
	primary, muted, success, notable, warning, danger lipgloss.Color
}{
	primary: lipgloss.Color("#7C3AED"), // Purple
	muted:   lipgloss.Color("#6C7086"), // Medium gray
	success: lipgloss.Color("#A6E3A1"), // Green
	notable: lipgloss.Color("#89B4FA"), // Blue
	warning: lipgloss.Color("#F9E2AF"), // Yellow
	danger:  lipgloss.Color("#F38BA8"), // Red
}

// styles renders command output. Plain styles leave text unchanged.
type styles struct {
	title   lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	danger  lipgloss.Style
	notable lipgloss.Style
	urgent  lipgloss.Style
}

func colourStyles() *styles {
	return &styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(palette.primary),
		muted:   lipgloss.NewStyle().Foreground(palette.muted),
		success: lipgloss.NewStyle().Foreground(palette.success),
		warning: lipgloss.NewStyle().Foreground(palette.warning),
		danger:  lipgloss.NewStyle().Foreground(palette.danger),
		notable: lipgloss.NewStyle().Foreground(palette.notable),
		urgent:  lipgloss.NewStyle().Bold(true).Foreground(palette.danger),
	}
}

func plainStyles() *styles {
	p := lipgloss.NewStyle()
	return &styles{title: p, muted: p, success: p, warning: p, danger: p, notable: p, urgent: p}
}

// stylesFor colours output only when it goes to a terminal.
func stylesFor(w io.Writer) *styles {
	if isTerminal(w) {
		return colourStyles()
	}
	return plainStyles()
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// severity renders an alert severity label.
func (s *styles) severity(sev domain.Severity) string {
	label := string(sev)
	switch sev {
	case domain.SeverityUrgent:
		return s.urgent.Render(label)
	case domain.SeverityWarning:
		return s.warning.Render(label)
	case domain.SeverityNotable:
		return s.notable.Render(label)
	default:
		return s.muted.Render(label)
	}
}

// status renders a run or job status.
func (s *styles) status(status string) string {
	switch status {
	case string(domain.RunSuccess):
		return s.success.Render(status)
	case string(domain.RunPartial):
		return s.warning.Render(status)
	case string(domain.RunFailed):
		return s.danger.Render(status)
	default:
		return status
	}
}

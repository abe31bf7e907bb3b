package output

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used by the CLI.
type Styles struct {
	Header   lipgloss.Style
	Header2  lipgloss.Style
	Bold     lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Info     lipgloss.Style
	Location lipgloss.Style

	StatusCompleted lipgloss.Style
	StatusFailed    lipgloss.Style
	StatusCancelled lipgloss.Style
	StatusRunning   lipgloss.Style
}

// DefaultStyles returns styles for a color terminal.
func DefaultStyles() *Styles {
	return &Styles{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2:  lipgloss.NewStyle().Bold(true),
		Bold:     lipgloss.NewStyle().Bold(true),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		Info:     lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		Location: lipgloss.NewStyle().Foreground(lipgloss.Color("13")),

		StatusCompleted: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		StatusFailed:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		StatusCancelled: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		StatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() *Styles {
	plain := lipgloss.NewStyle()
	return &Styles{
		Header:          plain,
		Header2:         plain,
		Bold:            plain,
		Muted:           plain,
		Success:         plain,
		Warning:         plain,
		Error:           plain,
		Info:            plain,
		Location:        plain,
		StatusCompleted: plain,
		StatusFailed:    plain,
		StatusCancelled: plain,
		StatusRunning:   plain,
	}
}

package console

import "github.com/charmbracelet/lipgloss"

var (
	primary = lipgloss.Color("#a78bfa")
	fgBase  = lipgloss.Color("#c0c0c0")
	fgMuted = lipgloss.Color("#808080")
	success = lipgloss.Color("#42b883")
	failure = lipgloss.Color("#ff5555")
	border  = lipgloss.Color("#585858")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primary)
	baseStyle    = lipgloss.NewStyle().Foreground(fgBase)
	mutedStyle   = lipgloss.NewStyle().Foreground(fgMuted)
	playingStyle = lipgloss.NewStyle().Bold(true).Foreground(success)
	errorStyle   = lipgloss.NewStyle().Foreground(failure)

	playerBarStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(border)
)

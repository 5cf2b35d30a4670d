package checkpoint

import "github.com/charmbracelet/lipgloss"

var (
	salmonPink = lipgloss.Color("#FFB3BA")
	mintGreen  = lipgloss.Color("#A8E6CF")
	mutedGray  = lipgloss.Color("#6B7280")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(salmonPink)

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(salmonPink)

	hintStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Italic(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(salmonPink).
			Padding(0, 1)

	acceptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(mintGreen).
			Bold(true)

	rejectStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(salmonPink).
			Bold(true)

	idleButtonStyle = lipgloss.NewStyle().
			Foreground(mutedGray)
)

package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorRed    = lipgloss.Color("#FF0000")
	colorGreen  = lipgloss.Color("#00FF00")
	colorYellow = lipgloss.Color("#FFFF00")
	colorCyan   = lipgloss.Color("#00FFFF")
	colorGray   = lipgloss.Color("#666666")
	colorWhite  = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite).
			Background(lipgloss.Color("#7D56F4")).
			PaddingLeft(2).
			PaddingRight(2).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorCyan)

	idStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(1, 2)

	recStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	flaggedStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	confirmStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			MarginTop(1)

	meterStyle = lipgloss.NewStyle().
			Foreground(colorGray)
)

// levelColor follows the usual meter bands: green, yellow above 70%, red
// above 90%.
func levelColor(level float64) lipgloss.Color {
	switch {
	case level > 0.9:
		return colorRed
	case level > 0.7:
		return colorYellow
	default:
		return colorGreen
	}
}

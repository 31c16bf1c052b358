package cmd

import "github.com/charmbracelet/lipgloss"

// LipGloss signature purple/pink palette
var (
	headerColor  = lipgloss.Color("#F780FF") // Bright pink/magenta
	sectionColor = lipgloss.Color("#BD93F9") // Purple
	numberColor  = lipgloss.Color("#FF79C6") // Pink
	textColor    = lipgloss.Color("#E9E9F4") // Light purple/white
	borderColor  = lipgloss.Color("#6272A4") // Muted purple
	summaryColor = lipgloss.Color("#8BE9FD") // Cyan accent
	warnColor    = lipgloss.Color("#FF5555") // Red

	headerStyle  = lipgloss.NewStyle().Foreground(headerColor).Bold(true).Padding(0, 1)
	borderStyle  = lipgloss.NewStyle().Foreground(borderColor)
	summaryStyle = lipgloss.NewStyle().Foreground(summaryColor).Italic(true)
	textStyle    = lipgloss.NewStyle().Foreground(textColor)
	warnStyle    = lipgloss.NewStyle().Foreground(warnColor).Bold(true)
	titleStyle   = lipgloss.NewStyle().Foreground(headerColor).Bold(true).Underline(true)
)

func cell(color lipgloss.Color, width int, right bool) lipgloss.Style {
	s := lipgloss.NewStyle().Foreground(color).Padding(0, 1).Width(width)
	if right {
		s = s.Align(lipgloss.Right)
	}
	return s
}

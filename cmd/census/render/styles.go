package render

import "github.com/charmbracelet/lipgloss"

var (
	ColorAccent = lipgloss.Color("#5FAFD7")
	ColorWarn   = lipgloss.Color("#D7AF5F")
	ColorFail   = lipgloss.Color("#D75F5F")
	ColorPass   = lipgloss.Color("#5FD787")
	ColorMuted  = lipgloss.Color("#767676")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	passStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	borderStyle = lipgloss.NewStyle().Foreground(ColorMuted)
)

package ui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent  = lipgloss.Color("#FF79C6")
	colorMuted   = lipgloss.Color("#6272A4")
	colorText    = lipgloss.Color("#F8F8F2")
	colorHighlit = lipgloss.Color("#50FA7B")

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			MarginBottom(1)

	PickerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)

	PromptStyle = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)

	ItemStyle = lipgloss.NewStyle().Foreground(colorText).PaddingLeft(2)

	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(colorHighlit).
				Bold(true).
				PaddingLeft(1).
				SetString("›")

	ButtonStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorMuted).
			Padding(0, 2).
			MarginTop(1)

	EmptyStyle = lipgloss.NewStyle().Foreground(colorMuted)

	HelpKeyStyle  = lipgloss.NewStyle().Foreground(colorAccent)
	HelpDescStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

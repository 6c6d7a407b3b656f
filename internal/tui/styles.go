package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	currentStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	sectionStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("111"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244"))
)

package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Status styles
var (
	StyleStatusRunning = lipgloss.NewStyle().
				Foreground(lipgloss.Color("yellow")).
				Bold(true)

	StyleStatusComplete = lipgloss.NewStyle().
				Foreground(lipgloss.Color("green")).
				Bold(true)

	StyleStatusFailed = lipgloss.NewStyle().
				Foreground(lipgloss.Color("red")).
				Bold(true)

	StyleStatusSkipped = lipgloss.NewStyle().
				Foreground(lipgloss.Color("208"))

	StyleStatusPending = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

// UI element styles
var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	StyleDetail = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// Package ui provides terminal rendering helpers for the CLI.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// Colorized reports whether the terminal supports color output.
func Colorized() bool {
	return termenv.DefaultOutput().Profile != termenv.Ascii
}

func render(style lipgloss.Style, s string) string {
	if !Colorized() {
		return s
	}
	return style.Render(s)
}

// RenderPass renders a success marker.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderFail renders a failure marker.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderWarn renders a warning marker.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderAccent renders emphasized text.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderDim renders de-emphasized text.
func RenderDim(s string) string { return render(dimStyle, s) }

// RenderStatus colors a connection status string: online green, offline
// red, syncing yellow.
func RenderStatus(status string) string {
	switch status {
	case "online":
		return RenderPass(status)
	case "offline":
		return RenderFail(status)
	case "syncing":
		return RenderWarn(status)
	default:
		return status
	}
}

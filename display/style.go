package display

import (
	"github.com/charmbracelet/lipgloss"
)

// These colors are from the gruvbox vim theme
// https://github.com/morhetz/gruvbox
var fg = lipgloss.AdaptiveColor{
	Light: "#3c3836",
	Dark:  "#ebdbb2",
}
var gray = lipgloss.AdaptiveColor{
	Light: "#7c6f64",
	Dark:  "#a89984",
}
var red = lipgloss.Color("#cc241d")
var green = lipgloss.Color("#98971a")
var yellow = lipgloss.Color("#d79921")
var blue = lipgloss.Color("#458588")
var aqua = lipgloss.Color("#689d6a")
var orange = lipgloss.Color("#d65d0e")

var baseStyle = lipgloss.NewStyle().
	Foreground(fg)

var appStyle = baseStyle.
	Foreground(aqua).
	Bold(true)

var labelStyle = baseStyle.
	Width(30)

var dimStyle = baseStyle.
	Foreground(gray)

var titleStyle = baseStyle.
	Bold(true).
	MarginTop(1)

var methodStyle = baseStyle.
	Foreground(blue).
	Bold(true).
	Width(8)

var pendingStyle = baseStyle.
	Foreground(blue)

var errorStyle = baseStyle.
	Foreground(red)

var serverErrorStyle = baseStyle.
	Foreground(red).
	Bold(true)

var redirectStyle = baseStyle.
	Foreground(yellow)

var successStyle = baseStyle.
	Foreground(green)

var offlineStyle = baseStyle.
	Foreground(orange)

package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var styles = NewPalette("#1A73E8", "#188038", "#D93025", "#F9AB00", "#626262")

// interface Painter defines coloring text with [lipgloss] styles
type Painter interface {
	On(string, lipgloss.Color) string // Sets background color
	As(string, lipgloss.Color) string // Sets foreground color
}

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title    lipgloss.Style
	success  lipgloss.Style
	error    lipgloss.Style
	warning  lipgloss.Style
	help     lipgloss.Style
	selected lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title:    NewBold(t).MarginBottom(1),
		success:  NewBold(s),
		error:    NewBold(e),
		warning:  NewStyle(w),
		help:     NewEm(h),
		selected: NewBold(s),
	}
}

// On renders text on a background color.
func (p *Palette) On(text string, bg lipgloss.Color) string {
	return lipgloss.NewStyle().Background(bg).Render(text)
}

// As renders text in a foreground color.
func (p *Palette) As(text string, fg lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(fg).Render(text)
}

var _ Painter = (*Palette)(nil)

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var styles = NewPalette("#FF0000", "#0F9D58", "#D93025", "#F4B400", "#626262")

// Palette is the stylesheet shared by every view.
type Palette struct {
	title   lipgloss.Style
	ok      lipgloss.Style
	err     lipgloss.Style
	warn    lipgloss.Style
	help    lipgloss.Style
	label   lipgloss.Style
	focused lipgloss.Style
	bar     lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title:   NewBold(t).MarginBottom(1),
		ok:      NewBold(s),
		err:     NewBold(e),
		warn:    NewStyle(w),
		help:    NewEm(h),
		label:   NewStyle(h).Width(13),
		focused: NewBold(t).Width(13),
		bar:     NewStyle(t),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// progressBar draws pct (0-100) as a bar of width cells.
func progressBar(pct, width int) string {
	pct = min(max(pct, 0), 100)
	filled := width * pct / 100
	return styles.bar.Render(strings.Repeat("█", filled)) + styles.help.Render(strings.Repeat("░", width-filled))
}

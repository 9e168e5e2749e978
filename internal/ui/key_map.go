package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	next   key.Binding
	prev   key.Binding
	cycle  key.Binding
	submit key.Binding
	save   key.Binding
	skip   key.Binding
	quit   key.Binding
	done   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		next:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next field")),
		prev:   key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev field")),
		cycle:  key.NewBinding(key.WithKeys(" ", "right", "left"), key.WithHelp("space", "cycle visibility")),
		submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "next")),
		save:   key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "upload")),
		skip:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "skip item")),
		quit:   key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "abort")),
		done:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.next, k.prev, k.cycle},
		{k.submit, k.save, k.skip, k.quit},
	}
}

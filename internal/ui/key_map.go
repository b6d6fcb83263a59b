package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	login    key.Binding
	next     key.Binding
	prev     key.Binding
	generate key.Binding
	yes      key.Binding
	no       key.Binding
	open     key.Binding
	restart  key.Binding
	logout   key.Binding
	quit     key.Binding
	abort    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		login:    key.NewBinding(key.WithKeys("l", "enter"), key.WithHelp("l", "log in")),
		next:     key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
		prev:     key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "previous field")),
		generate: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "generate")),
		yes:      key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "create playlist")),
		no:       key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "discard")),
		open:     key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open in browser")),
		restart:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "new playlist")),
		logout:   key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "log out")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		abort:    key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.login, k.next, k.prev, k.generate},
		{k.yes, k.no, k.open, k.restart},
		{k.logout, k.quit},
	}
}

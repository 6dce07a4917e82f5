package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	focus   key.Binding
	submit  key.Binding
	remove  key.Binding
	discard key.Binding
	restart key.Binding
	save    key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		focus:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch focus")),
		submit:  key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "upload")),
		remove:  key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "remove file")),
		discard: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "discard")),
		restart: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "new upload")),
		save:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save result")),
		quit:    key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.focus, k.submit, k.remove},
		{k.discard, k.restart, k.save},
		{k.quit},
	}
}

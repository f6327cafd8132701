package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up           key.Binding
	Down         key.Binding
	PrevCategory key.Binding
	NextCategory key.Binding
	More         key.Binding
	Help         key.Binding
	Quit         key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	PrevCategory: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←/h", "prev type"),
	),
	NextCategory: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→/l", "next type"),
	),
	More: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "load more"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.PrevCategory, k.NextCategory, k.More, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.PrevCategory, k.NextCategory},
		{k.More, k.Help, k.Quit},
	}
}

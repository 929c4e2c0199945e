package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the dashboard key bindings.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding // expand or collapse the selected execution
	Cancel  key.Binding
	Refresh key.Binding
	Images  key.Binding // open the image viewer on an expanded execution
	Prev    key.Binding
	Next    key.Binding
	Close   key.Binding
	Quit    key.Binding
}

var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Toggle: key.NewBinding(
		key.WithKeys("enter", " "),
		key.WithHelp("enter", "details"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "cancel"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Images: key.NewBinding(
		key.WithKeys("i"),
		key.WithHelp("i", "images"),
	),
	Prev: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←", "previous image"),
	),
	Next: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→", "next image"),
	),
	Close: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "close viewer"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Toggle, k.Cancel, k.Refresh, k.Images, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Toggle},
		{k.Cancel, k.Refresh},
		{k.Images, k.Prev, k.Next, k.Close},
		{k.Quit},
	}
}

// viewerHelp lists the bindings active while the image viewer is open.
type viewerHelp KeyMap

func (k viewerHelp) ShortHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.Close, k.Quit}
}

func (k viewerHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Left    key.Binding
	Right   key.Binding
	Up      key.Binding
	Down    key.Binding
	ZoomIn  key.Binding
	ZoomOut key.Binding
	Fit     key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Left, k.ZoomIn, k.ZoomOut, k.Fit, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Left}, {k.ZoomIn, k.ZoomOut, k.Fit, k.Quit}}
}

var keys = keyMap{
	Left:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←↑↓→/hjkl", "pan")),
	Right:   key.NewBinding(key.WithKeys("right", "l")),
	Up:      key.NewBinding(key.WithKeys("up", "k")),
	Down:    key.NewBinding(key.WithKeys("down", "j")),
	ZoomIn:  key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "zoom in")),
	ZoomOut: key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "zoom out")),
	Fit:     key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "fit")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

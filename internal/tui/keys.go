package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds every binding of both views. Letter bindings only apply in
// the voice view; the chat view routes printable keys to its inputs.
type KeyMap struct {
	SwitchView key.Binding
	Quit       key.Binding

	// Voice view.
	Toggle       key.Binding
	StopPlayback key.Binding
	SendVideo    key.Binding

	// Chat view.
	FocusNext key.Binding
	Up        key.Binding
	Down      key.Binding
	Submit    key.Binding
	Logout    key.Binding
}

var DefaultKeyMap = KeyMap{
	SwitchView: key.NewBinding(
		key.WithKeys("ctrl+t"),
		key.WithHelp("ctrl+t", "switch view"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "talk"),
	),
	StopPlayback: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "stop response"),
	),
	SendVideo: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "send video"),
	),
	FocusNext: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "agents/compose"),
	),
	Up: key.NewBinding(
		key.WithKeys("up"),
		key.WithHelp("↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down"),
		key.WithHelp("↓", "down"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "select/send"),
	),
	Logout: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("ctrl+l", "logout"),
	),
}

package tui

import (
	"charm.land/bubbles/v2/key"
)

type keyMap struct {
	Quit       key.Binding
	Send       key.Binding
	Newline    key.Binding
	Stop       key.Binding
	Focus      key.Binding
	NewChat    key.Binding
	Chats      key.Binding
	Plan       key.Binding
	Debug      key.Binding
	Approve    key.Binding
	Theme      key.Binding
	Copy       key.Binding
	Up         key.Binding
	Down       key.Binding
	Toggle     key.Binding
	PageUp     key.Binding
	PageDown   key.Binding
	ScrollDown key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Quit:       key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("Ctrl+c", "quit")),
		Send:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("Enter", "send")),
		Newline:    key.NewBinding(key.WithKeys("ctrl+j"), key.WithHelp("Ctrl+j", "newline")),
		Stop:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("Esc", "stop")),
		Focus:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("Tab", "switch focus")),
		NewChat:    key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("Ctrl+n", "new chat")),
		Chats:      key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("Ctrl+l", "chats")),
		Plan:       key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("Ctrl+p", "plan")),
		Debug:      key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("Ctrl+d", "debug")),
		Approve:    key.NewBinding(key.WithKeys("ctrl+a"), key.WithHelp("Ctrl+a", "approve")),
		Theme:      key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("Ctrl+t", "theme")),
		Copy:       key.NewBinding(key.WithKeys("ctrl+y"), key.WithHelp("Ctrl+y", "copy")),
		Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "previous")),
		Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next")),
		Toggle:     key.NewBinding(key.WithKeys("enter", "space"), key.WithHelp("Enter", "toggle")),
		PageUp:     key.NewBinding(key.WithKeys("pgup"), key.WithHelp("PgUp", "page up")),
		PageDown:   key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("PgDn", "page down")),
		ScrollDown: key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("End", "bottom")),
	}
}

// shortHelp implements help.KeyMap for the focused panel.
type shortHelp []key.Binding

func (h shortHelp) ShortHelp() []key.Binding  { return h }
func (h shortHelp) FullHelp() [][]key.Binding { return [][]key.Binding{h} }

func (m *Model) bindings() shortHelp {
	k := m.keys
	switch m.focus {
	case focusTranscript:
		return shortHelp{k.Quit, k.Focus, k.Up, k.Down, k.Toggle, k.Copy, k.PageUp, k.PageDown, k.ScrollDown}
	case focusChats:
		return shortHelp{k.Quit, k.Up, k.Down, key.NewBinding(key.WithKeys("enter"), key.WithHelp("Enter", "open")), k.Chats}
	}
	bindings := shortHelp{k.Quit, k.Send, k.Newline, k.Focus, k.NewChat, k.Chats, k.Plan, k.Theme, k.Debug}
	if m.streaming() {
		bindings = append(shortHelp{k.Stop}, bindings...)
	}
	if len(m.pending) > 0 {
		bindings = append(bindings, k.Approve)
	}
	return bindings
}

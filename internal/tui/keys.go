package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Select   key.Binding
	Back     key.Binding
	Reset    key.Binding
	Ask      key.Binding
	Accept   key.Binding
	Discard  key.Binding
	Rollback key.Binding
	Commit   key.Binding
	Review   key.Binding
	Save     key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Select:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select/edit")),
		Back:     key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "back")),
		Reset:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset value")),
		Ask:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "ask assistant")),
		Accept:   key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "apply suggestions")),
		Discard:  key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "discard suggestions")),
		Rollback: key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "undo last patch")),
		Commit:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "commit patches")),
		Review:   key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "review")),
		Save:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save configuration")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Back, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.Back},
		{k.Reset, k.Ask, k.Accept, k.Discard},
		{k.Rollback, k.Commit, k.Review, k.Save, k.Quit},
	}
}

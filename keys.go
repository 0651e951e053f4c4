package main

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings shared by the TUI pages
type KeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Left      key.Binding
	Right     key.Binding
	Open      key.Binding
	Back      key.Binding
	PrevImage key.Binding
	NextImage key.Binding
	PrevPage  key.Binding
	NextPage  key.Binding
	Search    key.Binding
	Scan      key.Binding
	Setup     key.Binding
	Retry     key.Binding
	Download  key.Binding
	Archive   key.Binding
	AddTag    key.Binding
	RemoveTag key.Binding
	Auto      key.Binding
	Focus     key.Binding
	Help      key.Binding
	Quit      key.Binding
}

// DefaultKeyMap returns default keybindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Left: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "left"),
		),
		Right: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "right"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open"),
		),
		Back: key.NewBinding(
			key.WithKeys("backspace", "esc"),
			key.WithHelp("⌫/esc", "back"),
		),
		PrevImage: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "prev image"),
		),
		NextImage: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "next image"),
		),
		PrevPage: key.NewBinding(
			key.WithKeys("pgup", "p"),
			key.WithHelp("p/pgup", "prev page"),
		),
		NextPage: key.NewBinding(
			key.WithKeys("pgdown", "n"),
			key.WithHelp("n/pgdn", "next page"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		Scan: key.NewBinding(
			key.WithKeys("S"),
			key.WithHelp("S", "scan"),
		),
		Setup: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("ctrl+o", "library root"),
		),
		Retry: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "retry"),
		),
		Download: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "download file"),
		),
		Archive: key.NewBinding(
			key.WithKeys("D"),
			key.WithHelp("D", "download project"),
		),
		AddTag: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "add tag"),
		),
		RemoveTag: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "remove tag"),
		),
		Auto: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "auto-advance"),
		),
		Focus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch focus"),
		),
		Help: key.NewBinding(
			key.WithKeys("?", "f1"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns the bindings shown in page footers
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Open, k.Back, k.Search, k.Scan, k.Help, k.Quit}
}

// FullHelp returns the bindings shown on the help page
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right, k.Open, k.Back},
		{k.PrevImage, k.NextImage, k.Auto, k.PrevPage, k.NextPage},
		{k.Search, k.Scan, k.Setup, k.Retry, k.Focus},
		{k.Download, k.Archive, k.AddTag, k.RemoveTag},
		{k.Help, k.Quit},
	}
}

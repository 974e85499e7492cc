package ui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/yourusername/k8s-console/internal/session"
)

// KeyMap defines key bindings
type KeyMap struct {
	ForceQuit    key.Binding
	Quit         key.Binding
	Help         key.Binding
	Back         key.Binding
	Up           key.Binding
	Down         key.Binding
	Prev         key.Binding
	Next         key.Binding
	FocusNext    key.Binding
	FocusPrev    key.Binding
	Enter        key.Binding
	Filter       key.Binding
	Delete       key.Binding
	Restart      key.Binding
	Edit         key.Binding
	Logs         key.Binding
	ToggleFollow key.Binding
	Top          key.Binding
	Bottom       key.Binding
	PageUp       key.Binding
	PageDown     key.Binding
	Copy         key.Binding
	OpenLogs     key.Binding
	Confirm      key.Binding
	Backspace    key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "force quit"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Prev: key.NewBinding(
			key.WithKeys("left", "h", "["),
			key.WithHelp("←/h", "previous"),
		),
		Next: key.NewBinding(
			key.WithKeys("right", "]"),
			key.WithHelp("→", "next"),
		),
		FocusNext: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next selector"),
		),
		FocusPrev: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "previous selector"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "detail"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		Restart: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "restart"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "edit"),
		),
		Logs: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "logs"),
		),
		ToggleFollow: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "follow"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "bottom"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "ctrl+u"),
			key.WithHelp("PgUp", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+d"),
			key.WithHelp("PgDn", "page down"),
		),
		Copy: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "copy name"),
		),
		OpenLogs: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open in editor"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "confirm"),
		),
		Backspace: key.NewBinding(
			key.WithKeys("backspace"),
			key.WithHelp("backspace", "delete char"),
		),
	}
}

// Resolve maps a key press to a session input. The mapping depends on the
// snapshot: a pending confirmation accepts only y, and filter entry turns
// printable keys into characters.
func (k KeyMap) Resolve(msg tea.KeyMsg, s session.Snapshot) (session.Input, bool) {
	if key.Matches(msg, k.ForceQuit) {
		return session.Key(session.ActionForceQuit), true
	}

	if s.Confirmation != nil {
		if key.Matches(msg, k.Confirm) {
			return session.Key(session.ActionConfirm), true
		}
		return session.Key(session.ActionBack), true
	}

	if s.FilterActive && s.Mode == session.ModeBrowse {
		switch {
		case key.Matches(msg, k.Back):
			return session.Key(session.ActionBack), true
		case key.Matches(msg, k.Enter):
			return session.Key(session.ActionOpen), true
		case key.Matches(msg, k.Backspace):
			return session.Key(session.ActionBackspace), true
		case msg.Type == tea.KeyUp:
			return session.Key(session.ActionUp), true
		case msg.Type == tea.KeyDown:
			return session.Key(session.ActionDown), true
		case msg.Type == tea.KeySpace:
			return session.Char(' '), true
		case msg.Type == tea.KeyRunes && len(msg.Runes) == 1:
			return session.Char(msg.Runes[0]), true
		}
		return session.Input{}, false
	}

	bindings := []struct {
		binding key.Binding
		action  session.Action
	}{
		{k.Quit, session.ActionQuit},
		{k.Help, session.ActionHelp},
		{k.Back, session.ActionBack},
		{k.Up, session.ActionUp},
		{k.Down, session.ActionDown},
		{k.Prev, session.ActionPrev},
		{k.Next, session.ActionNext},
		{k.FocusNext, session.ActionFocusNext},
		{k.FocusPrev, session.ActionFocusPrev},
		{k.Enter, session.ActionOpen},
		{k.Filter, session.ActionFilter},
		{k.Delete, session.ActionDelete},
		{k.Restart, session.ActionRestart},
		{k.Edit, session.ActionEdit},
		{k.Logs, session.ActionLogs},
		{k.ToggleFollow, session.ActionToggleFollow},
		{k.Top, session.ActionTop},
		{k.Bottom, session.ActionBottom},
		{k.PageUp, session.ActionPageUp},
		{k.PageDown, session.ActionPageDown},
		{k.Copy, session.ActionCopy},
		{k.OpenLogs, session.ActionOpenLogs},
	}
	for _, b := range bindings {
		if key.Matches(msg, b.binding) {
			return session.Key(b.action), true
		}
	}
	return session.Input{}, false
}

package screen

import (
	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/wordmaster/internal/ui/layout"
)

// Screen defines the interface for all console screens.
type Screen interface {
	// Init returns an initial command when the screen is first created.
	Init() tea.Cmd

	// Update handles messages and returns updated screen + command.
	Update(msg tea.Msg) (Screen, tea.Cmd)

	// View renders the screen content (excluding header/footer).
	View(width, height int) string

	// Title returns the screen name for the header.
	Title() string
}

// KeyHintProvider is an optional interface that screens can implement
// to provide custom footer key hints.
type KeyHintProvider interface {
	KeyHints() []layout.KeyHint
}

// DataChangedMsg is emitted after a screen changed economy state, so the
// app reloads the pending counts in the header and the active screen can
// reload its data.
type DataChangedMsg struct{}

// DataChanged is a command producing DataChangedMsg.
func DataChanged() tea.Msg {
	return DataChangedMsg{}
}

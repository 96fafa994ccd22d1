// Package balanceedit is the admin form that overwrites a student's token
// balance.
package balanceedit

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/wordmaster/internal/ledger"
	"github.com/abhisek/wordmaster/internal/router"
	"github.com/abhisek/wordmaster/internal/screen"
	"github.com/abhisek/wordmaster/internal/store"
	"github.com/abhisek/wordmaster/internal/ui/components"
	"github.com/abhisek/wordmaster/internal/ui/layout"
	"github.com/abhisek/wordmaster/internal/ui/theme"
)

// Balances sets a student's balance.
type Balances interface {
	SetBalance(ctx context.Context, studentID string, balance int64) (ledger.Receipt, error)
}

type savedMsg struct {
	receipt ledger.Receipt
	err     error
}

type Screen struct {
	balances Balances
	student  store.Student
	input    components.TextInput
	saving   bool
}

var _ screen.Screen = (*Screen)(nil)
var _ screen.KeyHintProvider = (*Screen)(nil)

func New(balances Balances, student store.Student) *Screen {
	in := components.NewTextInput(strconv.FormatInt(student.Balance, 10), true, 12)
	return &Screen{balances: balances, student: student, input: in}
}

func (s *Screen) Init() tea.Cmd {
	return s.input.Init()
}

func (s *Screen) Title() string {
	return "Edit Balance"
}

func (s *Screen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "Enter", Description: "Save"},
		{Key: "Esc", Description: "Cancel"},
	}
}

func (s *Screen) save() tea.Cmd {
	if strings.TrimSpace(s.input.Value()) == "" {
		s.input.SetError("enter a balance")
		return nil
	}
	n, err := s.input.Int64Value()
	if err != nil {
		s.input.SetError("not a valid number")
		return nil
	}
	s.saving = true
	id := s.student.ID
	return func() tea.Msg {
		rc, err := s.balances.SetBalance(context.Background(), id, n)
		return savedMsg{receipt: rc, err: err}
	}
}

func (s *Screen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case savedMsg:
		s.saving = false
		if msg.err != nil {
			s.input.SetError(msg.err.Error())
			return s, nil
		}
		return s, tea.Sequence(
			func() tea.Msg { return router.PopScreenMsg{} },
			screen.DataChanged,
		)

	case tea.KeyMsg:
		if s.saving {
			return s, nil
		}
		switch msg.String() {
		case "esc":
			return s, func() tea.Msg { return router.PopScreenMsg{} }
		case "enter":
			return s, s.save()
		}
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return s, cmd
}

func (s *Screen) View(width, height int) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(theme.Title.Render("  "+s.student.Name) + "\n")
	b.WriteString(theme.Hint.Render(fmt.Sprintf("  Current balance: %d tokens", s.student.Balance)) + "\n\n")
	b.WriteString("  New balance: " + s.input.View() + "\n")
	if s.saving {
		b.WriteString("\n" + theme.Hint.Render("  Saving...") + "\n")
	}
	return theme.Card.Width(min(width-4, 60)).Render(b.String())
}

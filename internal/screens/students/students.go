package students

import (
	"context"
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/wordmaster/internal/dailycap"
	"github.com/abhisek/wordmaster/internal/router"
	"github.com/abhisek/wordmaster/internal/screen"
	"github.com/abhisek/wordmaster/internal/screens/balanceedit"
	"github.com/abhisek/wordmaster/internal/store"
	"github.com/abhisek/wordmaster/internal/ui/layout"
	"github.com/abhisek/wordmaster/internal/ui/theme"
)

// Roster lists students.
type Roster interface {
	List(ctx context.Context) ([]store.Student, error)
}

type loadedMsg struct {
	students []store.Student
	err      error
}

// Screen shows every student with their balance and today's earnings.
type Screen struct {
	roster   Roster
	balances balanceedit.Balances
	today    func() string
	dailyCap int64
	items    []store.Student
	cursor   int
	loaded   bool
	errMsg   string
}

var _ screen.Screen = (*Screen)(nil)
var _ screen.KeyHintProvider = (*Screen)(nil)

// New creates the roster screen. today returns the current economy date.
func New(roster Roster, balances balanceedit.Balances, today func() string, dailyCap int64) *Screen {
	return &Screen{roster: roster, balances: balances, today: today, dailyCap: dailyCap}
}

func (s *Screen) Init() tea.Cmd {
	return s.load()
}

func (s *Screen) Title() string {
	return "Students"
}

func (s *Screen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "↑↓", Description: "Select"},
		{Key: "e", Description: "Edit balance"},
		{Key: "Esc", Description: "Back"},
	}
}

func (s *Screen) load() tea.Cmd {
	return func() tea.Msg {
		list, err := s.roster.List(context.Background())
		return loadedMsg{students: list, err: err}
	}
}

func (s *Screen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case loadedMsg:
		s.loaded = true
		if msg.err != nil {
			s.errMsg = msg.err.Error()
			return s, nil
		}
		s.errMsg = ""
		s.items = msg.students
		if s.cursor >= len(s.items) {
			s.cursor = max(len(s.items)-1, 0)
		}
		return s, nil

	case screen.DataChangedMsg:
		return s, s.load()

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return s, func() tea.Msg { return router.PopScreenMsg{} }
		case "up", "k":
			if s.cursor > 0 {
				s.cursor--
			}
		case "down", "j":
			if s.cursor < len(s.items)-1 {
				s.cursor++
			}
		case "e", "enter":
			if s.cursor < len(s.items) {
				st := s.items[s.cursor]
				return s, func() tea.Msg {
					return router.PushScreenMsg{Screen: balanceedit.New(s.balances, st)}
				}
			}
		}
	}
	return s, nil
}

func (s *Screen) View(width, height int) string {
	if !s.loaded {
		return lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.TextDim).
			Render("\n\n  Loading students...")
	}

	var b strings.Builder
	b.WriteString("\n")

	if len(s.items) == 0 {
		b.WriteString(lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.TextDim).Italic(true).
			Render("No students yet"))
	} else {
		header := fmt.Sprintf("    %-24s %10s %12s  %s", "NAME", "BALANCE", "TODAY", "LAST TEST")
		b.WriteString(theme.ColumnHeader.Render(header) + "\n")

		today := s.today()
		maxRows := max(height-6, 3)
		start := 0
		if s.cursor >= maxRows {
			start = s.cursor - maxRows + 1
		}
		end := min(start+maxRows, len(s.items))
		for i := start; i < end; i++ {
			st := &s.items[i]
			lastTest := "never"
			if st.LastTestTime != nil {
				lastTest = st.LastTestTime.Local().Format("Jan 02 15:04")
			}
			line := fmt.Sprintf("%-24s %10d %12s  %s",
				layout.Truncate(st.Name, 24),
				st.Balance,
				fmt.Sprintf("%d/%d", dailycap.EffectiveEarned(st, today), s.dailyCap),
				lastTest)
			if i == s.cursor {
				b.WriteString(theme.Selected.Render("  ▸ "+line) + "\n")
			} else {
				b.WriteString(theme.Unselected.Render("    "+line) + "\n")
			}
		}
	}

	if s.errMsg != "" {
		b.WriteString("\n" + theme.StatusFailed.Render("  "+s.errMsg) + "\n")
	}
	return b.String()
}

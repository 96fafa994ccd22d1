package settlements

import (
	"context"
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/wordmaster/internal/router"
	"github.com/abhisek/wordmaster/internal/screen"
	"github.com/abhisek/wordmaster/internal/store"
	"github.com/abhisek/wordmaster/internal/ui/layout"
	"github.com/abhisek/wordmaster/internal/ui/theme"
)

// Engine is the part of the settlement engine this screen uses.
type Engine interface {
	List(ctx context.Context, opts store.ListOpts) ([]store.Settlement, error)
	Complete(ctx context.Context, id string) (*store.Settlement, error)
}

type loadedMsg struct {
	settlements []store.Settlement
	err         error
}

type completedMsg struct {
	settlement *store.Settlement
	err        error
}

// Screen lists settlements and marks payouts as handed over.
type Screen struct {
	engine  Engine
	items   []store.Settlement
	showAll bool
	cursor  int
	loaded  bool
	busy    bool
	status  string
	errMsg  string
}

var _ screen.Screen = (*Screen)(nil)
var _ screen.KeyHintProvider = (*Screen)(nil)

func New(engine Engine) *Screen {
	return &Screen{engine: engine}
}

func (s *Screen) Init() tea.Cmd {
	return s.load()
}

func (s *Screen) Title() string {
	if s.showAll {
		return "Settlements (all)"
	}
	return "Settlements (pending)"
}

func (s *Screen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "↑↓", Description: "Select"},
		{Key: "c", Description: "Mark paid"},
		{Key: "Tab", Description: "Pending/All"},
		{Key: "Esc", Description: "Back"},
	}
}

func (s *Screen) load() tea.Cmd {
	opts := store.ListOpts{Status: string(store.SettlementPending)}
	if s.showAll {
		opts = store.ListOpts{Limit: 200}
	}
	return func() tea.Msg {
		list, err := s.engine.List(context.Background(), opts)
		return loadedMsg{settlements: list, err: err}
	}
}

func (s *Screen) complete() tea.Cmd {
	if s.busy || s.cursor >= len(s.items) {
		return nil
	}
	st := s.items[s.cursor]
	if st.Status != store.SettlementPending {
		s.errMsg = "settlement is already completed"
		return nil
	}
	s.busy = true
	return func() tea.Msg {
		done, err := s.engine.Complete(context.Background(), st.ID)
		return completedMsg{settlement: done, err: err}
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
		s.items = msg.settlements
		if s.cursor >= len(s.items) {
			s.cursor = max(len(s.items)-1, 0)
		}
		return s, nil

	case completedMsg:
		s.busy = false
		if msg.err != nil {
			s.status = ""
			s.errMsg = msg.err.Error()
			return s, s.load()
		}
		s.errMsg = ""
		s.status = fmt.Sprintf("Paid %s to %s", formatAmount(msg.settlement.Amount), msg.settlement.StudentName)
		return s, tea.Batch(s.load(), screen.DataChanged)

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
		case "tab":
			s.showAll = !s.showAll
			s.cursor = 0
			return s, s.load()
		case "c":
			return s, s.complete()
		}
	}
	return s, nil
}

func (s *Screen) View(width, height int) string {
	if !s.loaded {
		return lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.TextDim).
			Render("\n\n  Loading settlements...")
	}

	var b strings.Builder
	b.WriteString("\n")

	if len(s.items) == 0 {
		b.WriteString(lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.TextDim).Italic(true).
			Render("No settlements to show"))
	} else {
		header := fmt.Sprintf("    %-20s %8s %10s  %-10s %s", "STUDENT", "TOKENS", "AMOUNT", "STATUS", "REQUESTED")
		b.WriteString(theme.ColumnHeader.Render(header) + "\n")

		maxRows := max(height-8, 3)
		start := 0
		if s.cursor >= maxRows {
			start = s.cursor - maxRows + 1
		}
		end := min(start+maxRows, len(s.items))
		for i := start; i < end; i++ {
			st := s.items[i]
			status := theme.StatusPending.Render(fmt.Sprintf("%-10s", st.Status))
			if st.Status == store.SettlementCompleted {
				status = theme.StatusDone.Render(fmt.Sprintf("%-10s", st.Status))
			}
			cols := fmt.Sprintf("%-20s %8d %10s  ",
				layout.Truncate(st.StudentName, 20), st.TokensDeducted, formatAmount(st.Amount))
			when := st.CreatedAt.Local().Format("Jan 02 15:04")

			prefix, style := "    ", theme.Unselected
			if i == s.cursor {
				prefix, style = "  ▸ ", theme.Selected
			}
			b.WriteString(style.Render(prefix+cols) + status + " " + style.Render(when) + "\n")
		}
	}

	b.WriteString("\n")
	if s.errMsg != "" {
		b.WriteString(theme.StatusFailed.Render("  "+s.errMsg) + "\n")
	} else if s.status != "" {
		b.WriteString(theme.StatusDone.Render("  "+s.status) + "\n")
	}
	return b.String()
}

// formatAmount renders a currency amount with thousands separators.
func formatAmount(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

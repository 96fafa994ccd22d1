// Package approvals is the console screen where the admin approves or
// rejects pending test requests. The queue reloads on a fixed interval so
// new requests show up without a keypress.
package approvals

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/wordmaster/internal/router"
	"github.com/abhisek/wordmaster/internal/screen"
	"github.com/abhisek/wordmaster/internal/store"
	"github.com/abhisek/wordmaster/internal/ui/layout"
	"github.com/abhisek/wordmaster/internal/ui/theme"
)

// RefreshInterval is how often the queue reloads on its own.
const RefreshInterval = 5 * time.Second

// Requests is the part of the test request workflow this screen drives.
type Requests interface {
	List(ctx context.Context, opts store.ListOpts) ([]store.TestRequest, error)
	Approve(ctx context.Context, id string) (*store.TestRequest, error)
	Reject(ctx context.Context, id string) (*store.TestRequest, error)
}

type loadedMsg struct {
	requests []store.TestRequest
	err      error
}

type decidedMsg struct {
	request *store.TestRequest
	action  string
	err     error
}

// refreshMsg carries the id of the screen instance whose timer fired, so a
// popped screen's timer does not drive a newer instance.
type refreshMsg struct{ screenID int64 }

var nextID atomic.Int64

// Screen lists pending test requests.
type Screen struct {
	requests Requests
	id       int64
	items    []store.TestRequest
	cursor   int
	loaded   bool
	busy     bool
	status   string
	errMsg   string
}

var _ screen.Screen = (*Screen)(nil)
var _ screen.KeyHintProvider = (*Screen)(nil)

func New(requests Requests) *Screen {
	return &Screen{requests: requests, id: nextID.Add(1)}
}

func (s *Screen) Init() tea.Cmd {
	return tea.Batch(s.load(), s.scheduleRefresh())
}

func (s *Screen) Title() string {
	return "Test Approvals"
}

func (s *Screen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "↑↓", Description: "Select"},
		{Key: "a", Description: "Approve"},
		{Key: "r", Description: "Reject"},
		{Key: "Esc", Description: "Back"},
	}
}

func (s *Screen) load() tea.Cmd {
	return func() tea.Msg {
		list, err := s.requests.List(context.Background(), store.ListOpts{Status: string(store.TestRequestPending)})
		return loadedMsg{requests: list, err: err}
	}
}

func (s *Screen) scheduleRefresh() tea.Cmd {
	id := s.id
	return tea.Tick(RefreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{screenID: id}
	})
}

func (s *Screen) decide(action string) tea.Cmd {
	if s.busy || s.cursor >= len(s.items) {
		return nil
	}
	s.busy = true
	id := s.items[s.cursor].ID
	return func() tea.Msg {
		var (
			tr  *store.TestRequest
			err error
		)
		if action == "approved" {
			tr, err = s.requests.Approve(context.Background(), id)
		} else {
			tr, err = s.requests.Reject(context.Background(), id)
		}
		return decidedMsg{request: tr, action: action, err: err}
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
		s.items = msg.requests
		if s.cursor >= len(s.items) {
			s.cursor = max(len(s.items)-1, 0)
		}
		return s, nil

	case refreshMsg:
		if msg.screenID != s.id {
			return s, nil
		}
		return s, tea.Batch(s.load(), s.scheduleRefresh())

	case decidedMsg:
		s.busy = false
		if msg.err != nil {
			s.status = ""
			s.errMsg = msg.err.Error()
			return s, s.load()
		}
		s.errMsg = ""
		s.status = fmt.Sprintf("%s's request %s", msg.request.StudentName, msg.action)
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
		case "a":
			return s, s.decide("approved")
		case "r":
			return s, s.decide("rejected")
		}
	}
	return s, nil
}

func (s *Screen) View(width, height int) string {
	if !s.loaded {
		return lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.TextDim).
			Render("\n\n  Loading requests...")
	}

	var b strings.Builder
	b.WriteString("\n")

	if len(s.items) == 0 {
		b.WriteString(lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.TextDim).Italic(true).
			Render("No pending test requests"))
	} else {
		header := fmt.Sprintf("    %-24s %-16s %s", "STUDENT", "REQUESTED", "WAITING")
		b.WriteString(theme.ColumnHeader.Render(header) + "\n")

		maxRows := max(height-8, 3)
		start := 0
		if s.cursor >= maxRows {
			start = s.cursor - maxRows + 1
		}
		end := min(start+maxRows, len(s.items))
		now := time.Now()
		for i := start; i < end; i++ {
			tr := s.items[i]
			line := fmt.Sprintf("%-24s %-16s %s",
				layout.Truncate(tr.StudentName, 24),
				tr.CreatedAt.Local().Format("Jan 02 15:04"),
				waiting(now.Sub(tr.CreatedAt)))
			if i == s.cursor {
				b.WriteString(theme.Selected.Render("  ▸ "+line) + "\n")
			} else {
				b.WriteString(theme.Unselected.Render("    "+line) + "\n")
			}
		}
		if end < len(s.items) {
			b.WriteString(theme.Hint.Render(fmt.Sprintf("    ... %d more", len(s.items)-end)) + "\n")
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

func waiting(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh %02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

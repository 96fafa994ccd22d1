// Package app hosts the admin console: a Bubble Tea program that stacks
// screens under a header showing the pending work queues.
package app

import (
	"context"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/wordmaster/internal/router"
	"github.com/abhisek/wordmaster/internal/screen"
	"github.com/abhisek/wordmaster/internal/screens/home"
	"github.com/abhisek/wordmaster/internal/ui/layout"
)

// CountsInterval is how often the header badges refresh.
const CountsInterval = 5 * time.Second

// Counter reports the size of a pending queue.
type Counter interface {
	PendingCount(ctx context.Context) (int, error)
}

// Deps wires the console to the economy services.
type Deps struct {
	Home        home.Services
	Requests    Counter
	Settlements Counter
}

type countsMsg struct {
	requests    int
	settlements int
}

type countsTickMsg struct{}

// AppModel is the root Bubble Tea model.
type AppModel struct {
	router      *router.Router
	deps        Deps
	requests    int
	settlements int
	width       int
	height      int
}

func newAppModel(deps Deps) AppModel {
	return AppModel{
		router: router.New(home.New(deps.Home)),
		deps:   deps,
	}
}

func (m AppModel) Init() tea.Cmd {
	return tea.Batch(m.loadCounts(), scheduleCounts())
}

func (m AppModel) loadCounts() tea.Cmd {
	deps := m.deps
	return func() tea.Msg {
		var c countsMsg
		ctx := context.Background()
		if deps.Requests != nil {
			c.requests, _ = deps.Requests.PendingCount(ctx)
		}
		if deps.Settlements != nil {
			c.settlements, _ = deps.Settlements.PendingCount(ctx)
		}
		return c
	}
}

func scheduleCounts() tea.Cmd {
	return tea.Tick(CountsInterval, func(time.Time) tea.Msg { return countsTickMsg{} })
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case countsMsg:
		m.requests = msg.requests
		m.settlements = msg.settlements
		return m, nil

	case countsTickMsg:
		return m, tea.Batch(m.loadCounts(), scheduleCounts())

	case screen.DataChangedMsg:
		return m, tea.Batch(m.loadCounts(), m.router.Update(msg))

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.router.Depth() > 1 {
				return m, func() tea.Msg { return router.PopScreenMsg{} }
			}
			return m, nil
		}
	}

	cmd := m.router.Update(msg)
	return m, cmd
}

func (m AppModel) footerHints() []layout.KeyHint {
	if p, ok := m.router.Active().(screen.KeyHintProvider); ok {
		return append(p.KeyHints(), layout.KeyHint{Key: "Ctrl+C", Description: "Quit"})
	}
	if m.router.Depth() > 1 {
		return []layout.KeyHint{
			{Key: "Esc", Description: "Back"},
			{Key: "Ctrl+C", Description: "Quit"},
		}
	}
	return []layout.KeyHint{
		{Key: "↑↓", Description: "Navigate"},
		{Key: "Enter", Description: "Select"},
		{Key: "Ctrl+C", Description: "Quit"},
	}
}

func (m AppModel) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true

	if m.width == 0 || m.height == 0 {
		return v
	}
	v.SetContent(m.render())
	return v
}

func (m AppModel) render() string {
	if layout.IsTooSmall(m.width, m.height) {
		return layout.RenderMinSizeMessage(m.width, m.height)
	}

	title := ""
	if active := m.router.Active(); active != nil {
		title = active.Title()
	}

	header := layout.RenderHeader(title, m.requests, m.settlements, m.width)
	footer := layout.RenderFooter(m.footerHints(), m.width)

	contentHeight := max(m.height-lipgloss.Height(header)-lipgloss.Height(footer), 0)
	content := m.router.View(m.width, contentHeight)

	return layout.RenderFrame(header, content, footer, m.width, m.height)
}

// Run starts the console and blocks until the user quits or ctx ends.
func Run(ctx context.Context, deps Deps) error {
	p := tea.NewProgram(newAppModel(deps), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// Package home is the admin console's landing menu.
package home

import (
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/wordmaster/internal/router"
	"github.com/abhisek/wordmaster/internal/screen"
	"github.com/abhisek/wordmaster/internal/screens/approvals"
	"github.com/abhisek/wordmaster/internal/screens/balanceedit"
	"github.com/abhisek/wordmaster/internal/screens/settlements"
	"github.com/abhisek/wordmaster/internal/screens/students"
	"github.com/abhisek/wordmaster/internal/ui/components"
	"github.com/abhisek/wordmaster/internal/ui/theme"
)

// Services are the economy operations reachable from the console.
type Services struct {
	Requests    approvals.Requests
	Settlements settlements.Engine
	Roster      students.Roster
	Balances    balanceedit.Balances
	Today       func() string
	DailyCap    int64
}

// HomeScreen is the console's main menu.
type HomeScreen struct {
	menu components.Menu
}

var _ screen.Screen = (*HomeScreen)(nil)

func push(s screen.Screen) tea.Cmd {
	return func() tea.Msg { return router.PushScreenMsg{Screen: s} }
}

func New(svc Services) *HomeScreen {
	items := []components.MenuItem{
		{Label: "Test Approvals", Detail: "approve or reject test requests", Action: func() tea.Cmd {
			return push(approvals.New(svc.Requests))
		}},
		{Label: "Settlements", Detail: "hand over cash payouts", Action: func() tea.Cmd {
			return push(settlements.New(svc.Settlements))
		}},
		{Label: "Students", Detail: "balances and daily earnings", Action: func() tea.Cmd {
			return push(students.New(svc.Roster, svc.Balances, svc.Today, svc.DailyCap))
		}},
		{Label: "Quit", Action: func() tea.Cmd {
			return tea.Quit
		}},
	}
	return &HomeScreen{menu: components.NewMenu(items)}
}

func (h *HomeScreen) Init() tea.Cmd {
	return nil
}

func (h *HomeScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	var cmd tea.Cmd
	h.menu, cmd = h.menu.Update(msg)
	return h, cmd
}

func (h *HomeScreen) View(width, height int) string {
	var b strings.Builder
	b.WriteString(theme.Title.Width(width).Render("WORDMASTER") + "\n")
	b.WriteString(theme.Subtitle.Width(width).Render("Token economy admin") + "\n\n")

	menu := theme.Card.Render(strings.TrimRight(h.menu.View(), "\n"))
	b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, menu))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, b.String())
}

func (h *HomeScreen) Title() string {
	return "Home"
}

package app

import (
	"context"
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/wordmaster/internal/screen"
)

type fixedCount int

func (c fixedCount) PendingCount(context.Context) (int, error) {
	return int(c), nil
}

func TestCountsShowInHeader(t *testing.T) {
	m := newAppModel(Deps{Requests: fixedCount(3), Settlements: fixedCount(1)})

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	next, _ = next.Update(m.loadCounts()())
	am := next.(AppModel)

	assert.Equal(t, 3, am.requests)
	assert.Equal(t, 1, am.settlements)
	content := am.render()
	assert.True(t, strings.Contains(content, "3 tests"), "header should show pending tests")
	assert.True(t, strings.Contains(content, "1 payouts"), "header should show pending payouts")
}

func TestDataChangedReloadsCounts(t *testing.T) {
	m := newAppModel(Deps{Requests: fixedCount(2), Settlements: fixedCount(0)})
	_, cmd := m.Update(screen.DataChangedMsg{})
	require.NotNil(t, cmd)
}

func TestEscOnHomeDoesNothing(t *testing.T) {
	m := newAppModel(Deps{})
	_, cmd := m.Update(tea.KeyPressMsg{Code: tea.KeyEscape})
	assert.Nil(t, cmd)
}

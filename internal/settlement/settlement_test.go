package settlement

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/abhisek/wordmaster/internal/dailycap"
	"github.com/abhisek/wordmaster/internal/ledger"
	"github.com/abhisek/wordmaster/internal/notify"
	"github.com/abhisek/wordmaster/internal/store"
	"github.com/abhisek/wordmaster/internal/students"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine *Engine
	ledger *ledger.Ledger
	store  *store.Store
	roster *students.Service
	events *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "settlement.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	l := ledger.New(st, dailycap.New(20, time.UTC), zerolog.Nop())
	events := &notify.Recorder{}
	return &fixture{
		engine: NewEngine(st, l, NewTerms(100, 10), events, zerolog.Nop()),
		ledger: l,
		store:  st,
		roster: students.NewService(st, zerolog.Nop()),
		events: events,
	}
}

func (f *fixture) studentWithBalance(t *testing.T, name string, balance int64) string {
	t.Helper()
	ctx := context.Background()
	st, err := f.roster.Create(ctx, name)
	require.NoError(t, err)
	_, err = f.ledger.SetBalance(ctx, st.ID, balance)
	require.NoError(t, err)
	return st.ID
}

func TestTerms(t *testing.T) {
	terms := NewTerms(100, 10)
	tests := []struct {
		balance int64
		want    Quote
	}{
		{0, Quote{}},
		{-5, Quote{}},
		{99, Quote{}},
		{100, Quote{Tokens: 100, Amount: 1000}},
		{250, Quote{Tokens: 200, Amount: 2000}},
		{1099, Quote{Tokens: 1000, Amount: 10000}},
	}
	for _, tt := range tests {
		if got := terms.Quote(tt.balance); got != tt.want {
			t.Errorf("Quote(%d) = %+v, want %+v", tt.balance, got, tt.want)
		}
	}

	if d := NewTerms(0, 0); d.Quantum != DefaultQuantum || d.Rate != DefaultRate {
		t.Errorf("NewTerms(0, 0) = %+v", d)
	}
}

func TestRequestSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.studentWithBalance(t, "Minji", 250)

	st, rc, err := f.engine.Request(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(200), st.TokensDeducted)
	assert.Equal(t, int64(2000), st.Amount)
	assert.Equal(t, store.SettlementPending, st.Status)
	assert.Equal(t, int64(50), rc.Balance)

	bal, err := f.ledger.Balance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(50), bal.Balance)

	stored, err := f.engine.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "Minji", stored.StudentName)

	entries, err := f.ledger.History(ctx, id, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.EntryDebit, entries[0].Kind)
	assert.Equal(t, st.ID, entries[0].Reference)

	assert.Equal(t, []notify.EventType{notify.SettlementRequested}, f.events.Types())
}

func TestRequestBelowMinimum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.studentWithBalance(t, "Jae", 80)

	_, _, err := f.engine.Request(ctx, id)
	assert.ErrorIs(t, err, ErrBelowMinimum)

	bal, err := f.ledger.Balance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(80), bal.Balance)

	list, err := f.engine.List(ctx, store.ListOpts{StudentID: id})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.events.Events())
}

func TestRequestUnknownStudent(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.engine.Request(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSecondRequestUsesRemainder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.studentWithBalance(t, "Ara", 250)

	_, _, err := f.engine.Request(ctx, id)
	require.NoError(t, err)
	_, _, err = f.engine.Request(ctx, id)
	assert.ErrorIs(t, err, ErrBelowMinimum, "50 tokens remain")
}

func TestCompleteSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.studentWithBalance(t, "Hana", 300)

	st, _, err := f.engine.Request(ctx, id)
	require.NoError(t, err)

	n, err := f.engine.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	done, err := f.engine.Complete(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SettlementCompleted, done.Status)

	bal, err := f.ledger.Balance(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, bal.Balance, "completion does not touch the ledger")

	_, err = f.engine.Complete(ctx, st.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.engine.Complete(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err = f.engine.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, []notify.EventType{notify.SettlementRequested, notify.SettlementCompleted}, f.events.Types())
}

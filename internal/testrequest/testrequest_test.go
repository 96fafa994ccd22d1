package testrequest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/abhisek/wordmaster/internal/cooldown"
	"github.com/abhisek/wordmaster/internal/notify"
	"github.com/abhisek/wordmaster/internal/store"
	"github.com/abhisek/wordmaster/internal/students"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc    *Service
	store  *store.Store
	roster *students.Service
	events *notify.Recorder
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "requests.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		store:  st,
		roster: students.NewService(st, zerolog.Nop()),
		events: &notify.Recorder{},
		now:    time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(st, cooldown.New(30*time.Minute), f.events, zerolog.Nop())
	f.svc.Now = func() time.Time { return f.now }
	return f
}

func (f *fixture) student(t *testing.T, name string) string {
	t.Helper()
	st, err := f.roster.Create(context.Background(), name)
	require.NoError(t, err)
	return st.ID
}

func TestRequestIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.student(t, "Minji")

	first, created, err := f.svc.Request(ctx, id)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, store.TestRequestPending, first.Status)
	assert.Equal(t, "Minji", first.StudentName)

	f.now = f.now.Add(2 * time.Minute)
	second, created, err := f.svc.Request(ctx, id)
	require.NoError(t, err, "active request short-circuits the cooldown")
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	st, err := f.store.Student(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, st.LastTestTime)
	assert.True(t, st.LastTestTime.Equal(time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)),
		"repeat call does not move the cooldown stamp")

	assert.Equal(t, []notify.EventType{notify.TestRequestCreated}, f.events.Types())
}

func TestRequestIdempotentWhileApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.student(t, "Jae")

	tr, _, err := f.svc.Request(ctx, id)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, tr.ID)
	require.NoError(t, err)

	again, created, err := f.svc.Request(ctx, id)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, tr.ID, again.ID)
	assert.Equal(t, store.TestRequestApproved, again.Status)
}

func TestCooldownAfterRejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.student(t, "Ara")

	tr, _, err := f.svc.Request(ctx, id)
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, tr.ID)
	require.NoError(t, err)

	f.now = f.now.Add(10 * time.Minute)
	_, _, err = f.svc.Request(ctx, id)
	var active *cooldown.ActiveError
	require.True(t, errors.As(err, &active), "got %v", err)
	assert.Equal(t, 20, active.RemainingMinutes)

	_, err = f.svc.Active(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound, "blocked request creates nothing")

	f.now = f.now.Add(20 * time.Minute)
	fresh, created, err := f.svc.Request(ctx, id)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, tr.ID, fresh.ID)
}

func TestConsumeThenFreshRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.student(t, "Hana")

	tr, _, err := f.svc.Request(ctx, id)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, tr.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Consume(ctx, tr.ID))

	_, err = f.svc.Get(ctx, tr.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "consumed requests are deleted")

	f.now = f.now.Add(31 * time.Minute)
	next, created, err := f.svc.Request(ctx, id)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, store.TestRequestPending, next.Status)
	assert.NotEqual(t, tr.ID, next.ID)
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.student(t, "Yuna")

	tr, _, err := f.svc.Request(ctx, id)
	require.NoError(t, err)

	err = f.svc.Consume(ctx, tr.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending requests cannot be consumed")

	_, err = f.svc.Approve(ctx, tr.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, tr.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Reject(ctx, tr.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := f.svc.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TestRequestApproved, got.Status, "failed transitions change nothing")

	_, err = f.svc.Approve(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, f.svc.Consume(ctx, "missing"), store.ErrNotFound)
}

func TestRejectedCannotBeApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr, _, err := f.svc.Request(ctx, f.student(t, "Kim"))
	require.NoError(t, err)

	_, err = f.svc.Reject(ctx, tr.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, tr.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, []notify.EventType{notify.TestRequestCreated, notify.TestRequestRejected}, f.events.Types())
}

func TestConsumeTxChecksOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.student(t, "Owner")
	other := f.student(t, "Other")

	tr, _, err := f.svc.Request(ctx, owner)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, tr.ID)
	require.NoError(t, err)

	err = f.store.Serialize(ctx, other, func(tx *store.Tx) error {
		return f.svc.ConsumeTx(ctx, tx, tr.ID, other)
	})
	assert.ErrorIs(t, err, ErrWrongStudent)
}

func TestConcurrentRequestsCreateOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.student(t, "Seo")

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]bool{}
		created int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr, c, err := f.svc.Request(ctx, id)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[tr.ID] = true
			if c {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
}

func TestListAndPendingCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _, err := f.svc.Request(ctx, f.student(t, "A"))
	require.NoError(t, err)
	f.now = f.now.Add(time.Second)
	_, _, err = f.svc.Request(ctx, f.student(t, "B"))
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, a.ID)
	require.NoError(t, err)

	n, err := f.svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := f.svc.List(ctx, store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "B", all[0].StudentName)

	approved, err := f.svc.List(ctx, store.ListOpts{Status: string(store.TestRequestApproved)})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, a.ID, approved[0].ID)
}

func TestCooldownFor(t *testing.T) {
	f := newFixture(t)
	last := f.now.Add(-5 * time.Minute)
	d := f.svc.CooldownFor(&store.Student{LastTestTime: &last})
	assert.False(t, d.Allowed)
	assert.Equal(t, 25, d.RemainingMinutes)
}

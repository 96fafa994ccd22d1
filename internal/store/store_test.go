package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedStudent(t *testing.T, s *Store, name string) *Student {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	st := &Student{ID: uuid.New().String(), Name: name, CreatedAt: now, UpdatedAt: now}
	err := s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.InsertStudent(context.Background(), st)
	})
	require.NoError(t, err)
	return st
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "whatever")
	assert.Error(t, err)
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		if err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestStudentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seeded := seedStudent(t, s, "Minji")

	got, err := s.Student(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "Minji", got.Name)
	assert.Zero(t, got.Balance)
	assert.Empty(t, got.LastEarnDate)
	assert.Nil(t, got.LastTestTime)
	assert.Equal(t, []string{}, got.LastWrongItemIDs)
	assert.True(t, got.CreatedAt.Equal(seeded.CreatedAt))

	byName, err := s.StudentByName(ctx, "Minji")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, byName.ID)

	_, err = s.StudentByName(ctx, "minji")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStudentNameUnique(t *testing.T) {
	s := openTestStore(t)
	seedStudent(t, s, "Jae")

	now := time.Now().UTC()
	err := s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.InsertStudent(context.Background(), &Student{ID: uuid.New().String(), Name: "Jae", CreatedAt: now, UpdatedAt: now})
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestStudentMutations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	st := seedStudent(t, s, "Ara")
	now := time.Now().UTC().Truncate(time.Second)

	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.ApplyCredit(ctx, st.ID, 7, 7, "2026-03-01", now); err != nil {
			return err
		}
		if err := tx.SetLastTestTime(ctx, st.ID, now); err != nil {
			return err
		}
		return tx.SetWrongItems(ctx, st.ID, []string{"w3", "w1"}, now)
	})
	require.NoError(t, err)

	got, err := s.Student(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Balance)
	assert.Equal(t, int64(7), got.DailyEarned)
	assert.Equal(t, "2026-03-01", got.LastEarnDate)
	require.NotNil(t, got.LastTestTime)
	assert.True(t, got.LastTestTime.Equal(now))
	assert.Equal(t, []string{"w3", "w1"}, got.LastWrongItemIDs)
}

func TestApplyDebitGuardsBalance(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	st := seedStudent(t, s, "Hana")
	now := time.Now().UTC()

	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		return tx.SetBalance(ctx, st.ID, 50, now)
	}))

	var applied bool
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		var err error
		applied, err = tx.ApplyDebit(ctx, st.ID, 60, now)
		return err
	}))
	assert.False(t, applied)

	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		var err error
		applied, err = tx.ApplyDebit(ctx, st.ID, 50, now)
		return err
	}))
	assert.True(t, applied)

	got, err := s.Student(ctx, st.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Balance)
}

func TestWithTxRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	st := seedStudent(t, s, "Yuna")

	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.SetBalance(ctx, st.ID, 99, time.Now()); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	got, err := s.Student(ctx, st.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Balance)
}

func TestUpdateMissingStudent(t *testing.T) {
	s := openTestStore(t)
	err := s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.SetBalance(context.Background(), "nope", 1, time.Now())
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTestRequestLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	st := seedStudent(t, s, "Dohyun")
	now := time.Now().UTC().Truncate(time.Second)

	_, err := s.ActiveTestRequest(ctx, st.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	tr := &TestRequest{ID: uuid.New().String(), StudentID: st.ID, Status: TestRequestPending, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error { return tx.InsertTestRequest(ctx, tr) }))

	active, err := s.ActiveTestRequest(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.ID, active.ID)
	assert.Equal(t, "Dohyun", active.StudentName)

	n, err := s.CountTestRequests(ctx, TestRequestPending)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var moved bool
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		var err error
		moved, err = tx.TransitionTestRequest(ctx, tr.ID, TestRequestApproved, TestRequestRejected, now)
		return err
	}))
	assert.False(t, moved, "request is pending, not approved")

	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		var err error
		moved, err = tx.TransitionTestRequest(ctx, tr.ID, TestRequestPending, TestRequestApproved, now)
		return err
	}))
	assert.True(t, moved)

	list, err := s.TestRequests(ctx, ListOpts{Status: string(TestRequestApproved)})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, TestRequestApproved, list[0].Status)

	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error { return tx.DeleteTestRequest(ctx, tr.ID) }))
	_, err = s.TestRequest(ctx, tr.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSettlementListing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := seedStudent(t, s, "A")
	b := seedStudent(t, s, "B")
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		for i, id := range []string{a.ID, b.ID} {
			at := base.Add(time.Duration(i) * time.Minute)
			err := tx.InsertSettlement(ctx, &Settlement{
				ID: uuid.New().String(), StudentID: id, TokensDeducted: 100, Amount: 1000,
				Status: SettlementPending, CreatedAt: at, UpdatedAt: at,
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))

	all, err := s.Settlements(ctx, ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "B", all[0].StudentName, "newest first")

	forA, err := s.Settlements(ctx, ListOpts{StudentID: a.ID})
	require.NoError(t, err)
	require.Len(t, forA, 1)
	assert.Equal(t, int64(1000), forA[0].Amount)

	pending, err := s.CountSettlements(ctx, SettlementPending)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
}

func TestLedgerEntriesOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	st := seedStudent(t, s, "Seo")

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
			return tx.AppendLedgerEntry(ctx, &LedgerEntry{
				StudentID: st.ID, Kind: EntryCredit, Delta: int64(i), BalanceAfter: int64(i), CreatedAt: time.Now().UTC(),
			})
		}))
	}

	entries, err := s.LedgerEntries(ctx, st.ID, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Greater(t, entries[0].Sequence, entries[1].Sequence)
	assert.Equal(t, int64(3), entries[0].Delta)
}

func TestRolledBackLedgerEntryIsDiscarded(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	st := seedStudent(t, s, "Kim")

	_ = s.WithTx(ctx, func(tx *Tx) error {
		require.NoError(t, tx.AppendLedgerEntry(ctx, &LedgerEntry{StudentID: st.ID, Kind: EntryCredit, Delta: 9, CreatedAt: time.Now()}))
		return assert.AnError
	})

	e := LedgerEntry{StudentID: st.ID, Kind: EntryCredit, Delta: 1, CreatedAt: time.Now()}
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		return tx.AppendLedgerEntry(ctx, &e)
	}))
	assert.Positive(t, e.Sequence)

	entries, err := s.LedgerEntries(ctx, st.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, e.Sequence, entries[0].Sequence)
	assert.Equal(t, int64(1), entries[0].Delta)
}

func TestSQLiteDSN(t *testing.T) {
	got := sqliteDSN("/tmp/w.db")
	assert.Equal(t, "/tmp/w.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)", got)

	assert.Contains(t, sqliteDSN("file:w.db?mode=rwc"), "file:w.db?mode=rwc&_pragma=busy_timeout(5000)")
	assert.Equal(t, "w.db?_pragma=foreign_keys(OFF)", sqliteDSN("w.db?_pragma=foreign_keys(OFF)"))
}

func TestSerializeDifferentStudentsDoNotBlock(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := seedStudent(t, s, "A")
	b := seedStudent(t, s, "B")

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	done := make(chan error, 1)
	go func() {
		done <- s.Serialize(ctx, a.ID, func(tx *Tx) error {
			if _, err := tx.LockStudent(ctx, a.ID); err != nil {
				return err
			}
			once.Do(func() { close(started) })
			<-release
			return tx.SetBalance(ctx, a.ID, 5, time.Now())
		})
	}()
	<-started

	short, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Serialize(short, b.ID, func(tx *Tx) error {
		return tx.SetBalance(short, b.ID, 9, time.Now())
	}))
	got, err := s.Student(short, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.Balance)

	close(release)
	require.NoError(t, <-done, "stale snapshot is replayed")
	got, err = s.Student(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Balance)
}

func TestSerializeConcurrentCredits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	st := seedStudent(t, s, "Lee")

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Serialize(ctx, st.ID, func(tx *Tx) error {
				cur, err := tx.LockStudent(ctx, st.ID)
				if err != nil {
					return err
				}
				return tx.ApplyCredit(ctx, st.ID, 1, cur.DailyEarned+1, "2026-03-01", time.Now())
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Student(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.Balance)
	assert.Equal(t, int64(n), got.DailyEarned)
	assert.Zero(t, s.locks.size())
}

func TestKeyedMutexHonorsContext(t *testing.T) {
	k := newKeyedMutex()
	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := k.Lock(context.Background(), "b")
	require.NoError(t, err, "different keys never contend")
	other()

	unlock()
	unlock()
	assert.Zero(t, k.size())
}

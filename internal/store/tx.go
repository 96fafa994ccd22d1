package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs read queries against either the pool or a transaction.
type Queries struct {
	q       querier
	dialect string
}

func newQueries(q querier, dia string) *Queries {
	return &Queries{q: q, dialect: dia}
}

// builder returns a statement builder for the active dialect.
func (q *Queries) builder() *entsql.DialectBuilder {
	return entsql.Dialect(q.dialect)
}

// Tx is a transaction scoped to a single student's critical section.
// Mutating statements are only reachable through a Tx.
type Tx struct {
	*Queries
}

// maxBusyRetries bounds how often a transaction is replayed after SQLite
// reports a write conflict with another student's transaction.
const maxBusyRetries = 5

// WithTx runs fn inside a database transaction, committing when fn returns
// nil and rolling back otherwise. On SQLite a transaction whose snapshot
// went stale before its first write is rolled back and fn runs again, so fn
// must only have effects through tx.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil || !isBusy(err) || attempt == maxBusyRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt+1) * 5 * time.Millisecond):
		}
	}
}

func (s *Store) runTx(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	tx := &Tx{Queries: newQueries(sqlTx, s.dialect)}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Serialize runs fn in a transaction while holding the student's write lock.
// Every mutation of a student's economy state goes through here so that
// concurrent requests for the same student observe each other's writes.
// Different students never contend.
func (s *Store) Serialize(ctx context.Context, studentID string, fn func(*Tx) error) error {
	unlock, err := s.locks.Lock(ctx, studentID)
	if err != nil {
		return fmt.Errorf("lock student %s: %w", studentID, err)
	}
	defer unlock()
	return s.WithTx(ctx, fn)
}

// forUpdate adds a row lock on dialects that support it. SQLite has no row
// locks; the student lock in Serialize orders writers to the same student.
func (q *Queries) forUpdate(sel *entsql.Selector) *entsql.Selector {
	if q.dialect == dialect.Postgres {
		return sel.ForUpdate()
	}
	return sel
}

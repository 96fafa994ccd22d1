package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

var studentColumns = []string{
	"id", "name", "balance", "daily_earned", "last_earn_date",
	"last_test_time", "last_wrong_item_ids", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (*Student, error) {
	var (
		st        Student
		lastTest  sql.NullTime
		wrongJSON string
	)
	err := row.Scan(&st.ID, &st.Name, &st.Balance, &st.DailyEarned, &st.LastEarnDate,
		&lastTest, &wrongJSON, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastTest.Valid {
		t := lastTest.Time
		st.LastTestTime = &t
	}
	if wrongJSON != "" {
		if err := json.Unmarshal([]byte(wrongJSON), &st.LastWrongItemIDs); err != nil {
			return nil, fmt.Errorf("decode wrong item ids: %w", err)
		}
	}
	if st.LastWrongItemIDs == nil {
		st.LastWrongItemIDs = []string{}
	}
	return &st, nil
}

func (q *Queries) getStudent(ctx context.Context, p *entsql.Predicate, lock bool) (*Student, error) {
	sel := q.builder().Select(studentColumns...).
		From(q.builder().Table(studentsTable)).
		Where(p)
	if lock {
		sel = q.forUpdate(sel)
	}
	query, args := sel.Query()
	st, err := scanStudent(q.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}
	return st, nil
}

// Student returns the student with the given id.
func (q *Queries) Student(ctx context.Context, id string) (*Student, error) {
	return q.getStudent(ctx, entsql.EQ("id", id), false)
}

// StudentByName returns the student whose name matches exactly.
func (q *Queries) StudentByName(ctx context.Context, name string) (*Student, error) {
	return q.getStudent(ctx, entsql.EQ("name", name), false)
}

// Students lists all students, newest first.
func (q *Queries) Students(ctx context.Context) ([]Student, error) {
	query, args := q.builder().Select(studentColumns...).
		From(q.builder().Table(studentsTable)).
		OrderBy(entsql.Desc("created_at"), "name").
		Query()
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var out []Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// LockStudent reads the student row for update inside the transaction.
func (tx *Tx) LockStudent(ctx context.Context, id string) (*Student, error) {
	return tx.getStudent(ctx, entsql.EQ("id", id), true)
}

// InsertStudent creates a new student row.
func (tx *Tx) InsertStudent(ctx context.Context, st *Student) error {
	wrong, err := json.Marshal(nonNil(st.LastWrongItemIDs))
	if err != nil {
		return fmt.Errorf("encode wrong item ids: %w", err)
	}
	query, args := tx.builder().Insert(studentsTable).
		Columns(studentColumns...).
		Values(st.ID, st.Name, st.Balance, st.DailyEarned, st.LastEarnDate,
			st.LastTestTime, string(wrong), st.CreatedAt, st.UpdatedAt).
		Query()
	if _, err := tx.q.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert student %q: %w", st.Name, ErrDuplicate)
		}
		return fmt.Errorf("insert student: %w", err)
	}
	return nil
}

// ApplyCredit adds amount to the balance and stores the rolled-over daily
// earnings for day.
func (tx *Tx) ApplyCredit(ctx context.Context, id string, amount, dailyEarned int64, day string, now time.Time) error {
	query, args := tx.builder().Update(studentsTable).
		Add("balance", amount).
		Set("daily_earned", dailyEarned).
		Set("last_earn_date", day).
		Set("updated_at", now).
		Where(entsql.EQ("id", id)).
		Query()
	return tx.execOne(ctx, "apply credit", query, args)
}

// ApplyDebit subtracts amount from the balance only if the balance covers
// it. It reports whether the row was changed.
func (tx *Tx) ApplyDebit(ctx context.Context, id string, amount int64, now time.Time) (bool, error) {
	query, args := tx.builder().Update(studentsTable).
		Add("balance", -amount).
		Set("updated_at", now).
		Where(entsql.And(entsql.EQ("id", id), entsql.GTE("balance", amount))).
		Query()
	res, err := tx.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("apply debit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("apply debit: %w", err)
	}
	return n == 1, nil
}

// SetBalance overwrites the balance.
func (tx *Tx) SetBalance(ctx context.Context, id string, balance int64, now time.Time) error {
	query, args := tx.builder().Update(studentsTable).
		Set("balance", balance).
		Set("updated_at", now).
		Where(entsql.EQ("id", id)).
		Query()
	return tx.execOne(ctx, "set balance", query, args)
}

// SetLastTestTime stamps the time of the student's latest test request.
func (tx *Tx) SetLastTestTime(ctx context.Context, id string, at time.Time) error {
	query, args := tx.builder().Update(studentsTable).
		Set("last_test_time", at).
		Set("updated_at", at).
		Where(entsql.EQ("id", id)).
		Query()
	return tx.execOne(ctx, "set last test time", query, args)
}

// SetWrongItems replaces the carried-over wrong item ids.
func (tx *Tx) SetWrongItems(ctx context.Context, id string, items []string, now time.Time) error {
	wrong, err := json.Marshal(nonNil(items))
	if err != nil {
		return fmt.Errorf("encode wrong item ids: %w", err)
	}
	query, args := tx.builder().Update(studentsTable).
		Set("last_wrong_item_ids", string(wrong)).
		Set("updated_at", now).
		Where(entsql.EQ("id", id)).
		Query()
	return tx.execOne(ctx, "set wrong items", query, args)
}

// execOne executes a statement that must touch exactly one row.
func (tx *Tx) execOne(ctx context.Context, op, query string, args []any) error {
	res, err := tx.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

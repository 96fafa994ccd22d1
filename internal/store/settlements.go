package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

func (q *Queries) settlementSelect() (*entsql.Selector, *entsql.SelectTable) {
	b := q.builder()
	t := b.Table(settlementTable).As("t")
	s := b.Table(studentsTable).As("s")
	sel := b.Select(t.C("id"), t.C("student_id"), s.C("name"), t.C("tokens_deducted"), t.C("amount"),
		t.C("status"), t.C("created_at"), t.C("updated_at")).
		From(t).
		Join(s).On(t.C("student_id"), s.C("id"))
	return sel, t
}

func scanSettlement(row rowScanner) (*Settlement, error) {
	var st Settlement
	err := row.Scan(&st.ID, &st.StudentID, &st.StudentName, &st.TokensDeducted, &st.Amount,
		&st.Status, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Settlement returns the settlement with the given id.
func (q *Queries) Settlement(ctx context.Context, id string) (*Settlement, error) {
	sel, t := q.settlementSelect()
	query, args := sel.Where(entsql.EQ(t.C("id"), id)).Query()
	st, err := scanSettlement(q.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query settlement: %w", err)
	}
	return st, nil
}

// Settlements lists settlements newest first.
func (q *Queries) Settlements(ctx context.Context, opts ListOpts) ([]Settlement, error) {
	sel, t := q.settlementSelect()
	var preds []*entsql.Predicate
	if opts.Status != "" {
		preds = append(preds, entsql.EQ(t.C("status"), opts.Status))
	}
	if opts.StudentID != "" {
		preds = append(preds, entsql.EQ(t.C("student_id"), opts.StudentID))
	}
	if len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}
	sel = sel.OrderBy(entsql.Desc(t.C("created_at")))
	if opts.Limit > 0 {
		sel = sel.Limit(opts.Limit)
	}

	query, args := sel.Query()
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query settlements: %w", err)
	}
	defer rows.Close()

	var out []Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// CountSettlements counts settlements in the given status.
func (q *Queries) CountSettlements(ctx context.Context, status SettlementStatus) (int, error) {
	return q.count(ctx, settlementTable, entsql.EQ("status", string(status)))
}

// InsertSettlement creates a new settlement row.
func (tx *Tx) InsertSettlement(ctx context.Context, st *Settlement) error {
	query, args := tx.builder().Insert(settlementTable).
		Columns("id", "student_id", "tokens_deducted", "amount", "status", "created_at", "updated_at").
		Values(st.ID, st.StudentID, st.TokensDeducted, st.Amount, string(st.Status), st.CreatedAt, st.UpdatedAt).
		Query()
	if _, err := tx.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

// TransitionSettlement moves a settlement from one status to another. It
// reports false when the settlement is not currently in from.
func (tx *Tx) TransitionSettlement(ctx context.Context, id string, from, to SettlementStatus, now time.Time) (bool, error) {
	query, args := tx.builder().Update(settlementTable).
		Set("status", string(to)).
		Set("updated_at", now).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("status", string(from)))).
		Query()
	res, err := tx.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition settlement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition settlement: %w", err)
	}
	return n == 1, nil
}

package store

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

// AppendLedgerEntry stores the entry and sets its Sequence to the
// database-assigned row id.
func (tx *Tx) AppendLedgerEntry(ctx context.Context, e *LedgerEntry) error {
	query, args := tx.builder().Insert(ledgerTable).
		Columns("student_id", "kind", "delta", "balance_after", "reference", "created_at").
		Values(e.StudentID, string(e.Kind), e.Delta, e.BalanceAfter, e.Reference, e.CreatedAt).
		Returning("id").
		Query()
	if err := tx.q.QueryRowContext(ctx, query, args...).Scan(&e.Sequence); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// LedgerEntries returns a student's most recent entries, newest first.
// A limit of 0 returns everything.
func (q *Queries) LedgerEntries(ctx context.Context, studentID string, limit int) ([]LedgerEntry, error) {
	b := q.builder()
	sel := b.Select("id", "student_id", "kind", "delta", "balance_after", "reference", "created_at").
		From(b.Table(ledgerTable)).
		Where(entsql.EQ("student_id", studentID)).
		OrderBy(entsql.Desc("id"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}

	query, args := sel.Query()
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.Sequence, &e.StudentID, &e.Kind, &e.Delta, &e.BalanceAfter, &e.Reference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// testRequestSelect builds a listing query joined with the student name.
func (q *Queries) testRequestSelect() (*entsql.Selector, *entsql.SelectTable) {
	b := q.builder()
	r := b.Table(testRequestTable).As("r")
	s := b.Table(studentsTable).As("s")
	sel := b.Select(r.C("id"), r.C("student_id"), s.C("name"), r.C("status"), r.C("created_at"), r.C("updated_at")).
		From(r).
		Join(s).On(r.C("student_id"), s.C("id"))
	return sel, r
}

func scanTestRequest(row rowScanner) (*TestRequest, error) {
	var tr TestRequest
	if err := row.Scan(&tr.ID, &tr.StudentID, &tr.StudentName, &tr.Status, &tr.CreatedAt, &tr.UpdatedAt); err != nil {
		return nil, err
	}
	return &tr, nil
}

func (q *Queries) oneTestRequest(ctx context.Context, sel *entsql.Selector) (*TestRequest, error) {
	query, args := sel.Query()
	tr, err := scanTestRequest(q.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query test request: %w", err)
	}
	return tr, nil
}

// TestRequest returns the request with the given id.
func (q *Queries) TestRequest(ctx context.Context, id string) (*TestRequest, error) {
	sel, r := q.testRequestSelect()
	return q.oneTestRequest(ctx, sel.Where(entsql.EQ(r.C("id"), id)))
}

// ActiveTestRequest returns the student's pending or approved request.
func (q *Queries) ActiveTestRequest(ctx context.Context, studentID string) (*TestRequest, error) {
	sel, r := q.testRequestSelect()
	sel = sel.Where(entsql.And(
		entsql.EQ(r.C("student_id"), studentID),
		entsql.In(r.C("status"), string(TestRequestPending), string(TestRequestApproved)),
	)).OrderBy(entsql.Desc(r.C("created_at"))).Limit(1)
	return q.oneTestRequest(ctx, sel)
}

// TestRequests lists requests newest first.
func (q *Queries) TestRequests(ctx context.Context, opts ListOpts) ([]TestRequest, error) {
	sel, r := q.testRequestSelect()
	var preds []*entsql.Predicate
	if opts.Status != "" {
		preds = append(preds, entsql.EQ(r.C("status"), opts.Status))
	}
	if opts.StudentID != "" {
		preds = append(preds, entsql.EQ(r.C("student_id"), opts.StudentID))
	}
	if len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}
	sel = sel.OrderBy(entsql.Desc(r.C("created_at")))
	if opts.Limit > 0 {
		sel = sel.Limit(opts.Limit)
	}

	query, args := sel.Query()
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query test requests: %w", err)
	}
	defer rows.Close()

	var out []TestRequest
	for rows.Next() {
		tr, err := scanTestRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan test request: %w", err)
		}
		out = append(out, *tr)
	}
	return out, rows.Err()
}

// CountTestRequests counts requests in the given status.
func (q *Queries) CountTestRequests(ctx context.Context, status TestRequestStatus) (int, error) {
	return q.count(ctx, testRequestTable, entsql.EQ("status", string(status)))
}

func (q *Queries) count(ctx context.Context, table string, p *entsql.Predicate) (int, error) {
	b := q.builder()
	query, args := b.Select(entsql.Count("*")).From(b.Table(table)).Where(p).Query()
	var n int
	if err := q.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// InsertTestRequest creates a new request row.
func (tx *Tx) InsertTestRequest(ctx context.Context, tr *TestRequest) error {
	query, args := tx.builder().Insert(testRequestTable).
		Columns("id", "student_id", "status", "created_at", "updated_at").
		Values(tr.ID, tr.StudentID, string(tr.Status), tr.CreatedAt, tr.UpdatedAt).
		Query()
	if _, err := tx.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert test request: %w", err)
	}
	return nil
}

// TransitionTestRequest moves a request from one status to another. It
// reports false when the request is not currently in from.
func (tx *Tx) TransitionTestRequest(ctx context.Context, id string, from, to TestRequestStatus, now time.Time) (bool, error) {
	query, args := tx.builder().Update(testRequestTable).
		Set("status", string(to)).
		Set("updated_at", now).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("status", string(from)))).
		Query()
	res, err := tx.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition test request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition test request: %w", err)
	}
	return n == 1, nil
}

// DeleteTestRequest removes a consumed request.
func (tx *Tx) DeleteTestRequest(ctx context.Context, id string) error {
	query, args := tx.builder().Delete(testRequestTable).
		Where(entsql.EQ("id", id)).
		Query()
	return tx.execOne(ctx, "delete test request", query, args)
}

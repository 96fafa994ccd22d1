// Package settlement exchanges whole blocks of tokens for a real-currency
// payout. Tokens leave the balance when the settlement is requested; the
// admin later marks the payout as handed over.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/wordmaster/internal/ledger"
	"github.com/abhisek/wordmaster/internal/metrics"
	"github.com/abhisek/wordmaster/internal/notify"
	"github.com/abhisek/wordmaster/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Defaults for the exchange terms.
const (
	DefaultQuantum int64 = 100 // tokens per exchangeable block
	DefaultRate    int64 = 10  // currency units per token
)

var (
	ErrBelowMinimum      = errors.New("balance is below the settlement minimum")
	ErrInvalidTransition = errors.New("invalid settlement transition")
)

// Terms are the exchange parameters.
type Terms struct {
	Quantum int64
	Rate    int64
}

// NewTerms substitutes defaults for non-positive values.
func NewTerms(quantum, rate int64) Terms {
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	if rate <= 0 {
		rate = DefaultRate
	}
	return Terms{Quantum: quantum, Rate: rate}
}

// Exchangeable returns the largest multiple of the quantum covered by
// balance.
func (t Terms) Exchangeable(balance int64) int64 {
	if balance <= 0 {
		return 0
	}
	return balance / t.Quantum * t.Quantum
}

// Quote previews what a settlement would pay for balance.
type Quote struct {
	Tokens int64 `json:"tokens"`
	Amount int64 `json:"amount"`
}

// Quote returns the tokens that would be exchanged and the payout.
func (t Terms) Quote(balance int64) Quote {
	tokens := t.Exchangeable(balance)
	return Quote{Tokens: tokens, Amount: tokens * t.Rate}
}

// Engine creates and completes settlements.
type Engine struct {
	store    *store.Store
	ledger   *ledger.Ledger
	terms    Terms
	notifier notify.Notifier
	log      zerolog.Logger

	// Now returns the current time. Tests replace it.
	Now func() time.Time
}

// NewEngine creates a settlement engine that debits through l.
func NewEngine(st *store.Store, l *ledger.Ledger, terms Terms, notifier notify.Notifier, log zerolog.Logger) *Engine {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Engine{
		store:    st,
		ledger:   l,
		terms:    terms,
		notifier: notifier,
		log:      log.With().Str("component", "settlement").Logger(),
		Now:      time.Now,
	}
}

// Terms returns the exchange terms in effect.
func (e *Engine) Terms() Terms {
	return e.terms
}

// Request exchanges every whole quantum of the student's balance. The
// debit and the pending settlement are written in one transaction, so
// either both happen or neither does. Balances under one quantum fail with
// ErrBelowMinimum and change nothing.
func (e *Engine) Request(ctx context.Context, studentID string) (*store.Settlement, ledger.Receipt, error) {
	var (
		out *store.Settlement
		rc  ledger.Receipt
	)
	err := e.store.Serialize(ctx, studentID, func(tx *store.Tx) error {
		student, err := tx.LockStudent(ctx, studentID)
		if err != nil {
			return err
		}
		q := e.terms.Quote(student.Balance)
		if q.Tokens == 0 {
			return ErrBelowMinimum
		}

		now := e.Now()
		st := &store.Settlement{
			ID:             uuid.New().String(),
			StudentID:      studentID,
			StudentName:    student.Name,
			TokensDeducted: q.Tokens,
			Amount:         q.Amount,
			Status:         store.SettlementPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		rc, err = e.ledger.DebitTx(ctx, tx, student, q.Tokens, st.ID)
		if err != nil {
			return err
		}
		if err := tx.InsertSettlement(ctx, st); err != nil {
			return err
		}
		out = st
		return nil
	})
	if err != nil {
		return nil, ledger.Receipt{}, fmt.Errorf("settle %s: %w", studentID, err)
	}

	metrics.TokensDebited.Add(float64(out.TokensDeducted))
	metrics.Settlements.WithLabelValues(string(store.SettlementPending)).Inc()
	e.log.Info().
		Str("student_id", studentID).
		Str("settlement_id", out.ID).
		Int64("tokens", out.TokensDeducted).
		Int64("amount", out.Amount).
		Msg("Settlement requested")
	notify.Send(ctx, e.notifier, e.log, notify.Event{
		Type:       notify.SettlementRequested,
		StudentID:  studentID,
		RequestID:  out.ID,
		Tokens:     out.TokensDeducted,
		Amount:     out.Amount,
		OccurredAt: out.CreatedAt,
	})
	return out, rc, nil
}

// Complete marks a pending settlement as paid out. The ledger is not
// touched; the tokens left when the settlement was requested.
func (e *Engine) Complete(ctx context.Context, id string) (*store.Settlement, error) {
	st, err := e.store.Settlement(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("complete settlement %s: %w", id, err)
	}

	err = e.store.Serialize(ctx, st.StudentID, func(tx *store.Tx) error {
		cur, err := tx.Settlement(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status != store.SettlementPending {
			return fmt.Errorf("%w: %s settlement cannot be completed", ErrInvalidTransition, cur.Status)
		}
		now := e.Now()
		moved, err := tx.TransitionSettlement(ctx, id, store.SettlementPending, store.SettlementCompleted, now)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: settlement is no longer pending", ErrInvalidTransition)
		}
		cur.Status, cur.UpdatedAt = store.SettlementCompleted, now
		st = cur
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			e.log.Error().Err(err).Str("settlement_id", id).Msg("Invalid settlement transition")
		}
		return nil, fmt.Errorf("complete settlement %s: %w", id, err)
	}

	metrics.Settlements.WithLabelValues(string(store.SettlementCompleted)).Inc()
	e.log.Info().Str("settlement_id", id).Str("student_id", st.StudentID).Msg("Settlement completed")
	notify.Send(ctx, e.notifier, e.log, notify.Event{
		Type:       notify.SettlementCompleted,
		StudentID:  st.StudentID,
		RequestID:  id,
		Tokens:     st.TokensDeducted,
		Amount:     st.Amount,
		OccurredAt: st.UpdatedAt,
	})
	return st, nil
}

// Get returns a settlement by id.
func (e *Engine) Get(ctx context.Context, id string) (*store.Settlement, error) {
	return e.store.Settlement(ctx, id)
}

// List returns settlements newest first.
func (e *Engine) List(ctx context.Context, opts store.ListOpts) ([]store.Settlement, error) {
	return e.store.Settlements(ctx, opts)
}

// PendingCount returns the number of settlements awaiting payout.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.store.CountSettlements(ctx, store.SettlementPending)
}

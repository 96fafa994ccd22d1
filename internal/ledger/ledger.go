// Package ledger moves tokens in and out of student balances and records
// every change as a ledger entry.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/wordmaster/internal/dailycap"
	"github.com/abhisek/wordmaster/internal/metrics"
	"github.com/abhisek/wordmaster/internal/store"
	"github.com/rs/zerolog"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNegativeBalance     = errors.New("balance must not be negative")
	ErrInvalidAmount       = errors.New("amount must not be negative")
)

// Receipt is the authoritative post-state of a student's balance.
type Receipt struct {
	StudentID      string `json:"student_id"`
	Delta          int64  `json:"delta"`
	Balance        int64  `json:"balance"`
	DailyEarned    int64  `json:"daily_earned"`
	RemainingToday int64  `json:"remaining_today"`
}

// Ledger owns every change to a student's token balance.
type Ledger struct {
	store *store.Store
	cap   dailycap.Tracker
	log   zerolog.Logger

	// Now returns the current time. Tests replace it.
	Now func() time.Time
}

// New creates a Ledger over st using tracker for daily accounting.
func New(st *store.Store, tracker dailycap.Tracker, log zerolog.Logger) *Ledger {
	return &Ledger{
		store: st,
		cap:   tracker,
		log:   log.With().Str("component", "ledger").Logger(),
		Now:   time.Now,
	}
}

// Cap returns the daily cap tracker shared with reward computation.
func (l *Ledger) Cap() dailycap.Tracker {
	return l.cap
}

// Today returns the current calendar day key.
func (l *Ledger) Today() string {
	return l.cap.Today(l.Now())
}

// Credit adds amount to the student's balance and daily earnings.
// Concurrent credits for one student are applied one after another.
func (l *Ledger) Credit(ctx context.Context, studentID string, amount int64) (Receipt, error) {
	var rc Receipt
	err := l.store.Serialize(ctx, studentID, func(tx *store.Tx) error {
		st, err := tx.LockStudent(ctx, studentID)
		if err != nil {
			return err
		}
		rc, err = l.CreditTx(ctx, tx, st, amount, l.Today(), "")
		return err
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("credit %s: %w", studentID, err)
	}
	metrics.TokensCredited.Add(float64(rc.Delta))
	return rc, nil
}

// CreditTx applies a credit inside a caller's serialized transaction. st
// must have been read with tx.LockStudent. The daily counter rolls over to
// today before amount is added, and last_earn_date moves to today even for
// a zero amount.
func (l *Ledger) CreditTx(ctx context.Context, tx *store.Tx, st *store.Student, amount int64, today, ref string) (Receipt, error) {
	if amount < 0 {
		return Receipt{}, ErrInvalidAmount
	}
	now := l.Now()
	earned := dailycap.EffectiveEarned(st, today) + amount
	if err := tx.ApplyCredit(ctx, st.ID, amount, earned, today, now); err != nil {
		return Receipt{}, err
	}

	st.Balance += amount
	st.DailyEarned = earned
	st.LastEarnDate = today

	if amount > 0 {
		err := tx.AppendLedgerEntry(ctx, &store.LedgerEntry{
			StudentID:    st.ID,
			Kind:         store.EntryCredit,
			Delta:        amount,
			BalanceAfter: st.Balance,
			Reference:    ref,
			CreatedAt:    now,
		})
		if err != nil {
			return Receipt{}, err
		}
	}

	l.log.Info().
		Str("student_id", st.ID).
		Int64("delta", amount).
		Int64("balance", st.Balance).
		Int64("daily_earned", earned).
		Msg("Tokens credited")

	return Receipt{
		StudentID:      st.ID,
		Delta:          amount,
		Balance:        st.Balance,
		DailyEarned:    earned,
		RemainingToday: l.cap.Remaining(st, today),
	}, nil
}

// Debit removes amount from the student's balance. It fails with
// ErrInsufficientBalance, leaving the balance untouched, when the balance
// does not cover the amount.
func (l *Ledger) Debit(ctx context.Context, studentID string, amount int64, ref string) (Receipt, error) {
	var rc Receipt
	err := l.store.Serialize(ctx, studentID, func(tx *store.Tx) error {
		st, err := tx.LockStudent(ctx, studentID)
		if err != nil {
			return err
		}
		rc, err = l.DebitTx(ctx, tx, st, amount, ref)
		return err
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("debit %s: %w", studentID, err)
	}
	metrics.TokensDebited.Add(float64(amount))
	return rc, nil
}

// DebitTx applies a debit inside a caller's serialized transaction.
func (l *Ledger) DebitTx(ctx context.Context, tx *store.Tx, st *store.Student, amount int64, ref string) (Receipt, error) {
	if amount <= 0 {
		return Receipt{}, ErrInvalidAmount
	}
	if amount > st.Balance {
		return Receipt{}, ErrInsufficientBalance
	}
	now := l.Now()
	applied, err := tx.ApplyDebit(ctx, st.ID, amount, now)
	if err != nil {
		return Receipt{}, err
	}
	if !applied {
		return Receipt{}, ErrInsufficientBalance
	}
	st.Balance -= amount

	err = tx.AppendLedgerEntry(ctx, &store.LedgerEntry{
		StudentID:    st.ID,
		Kind:         store.EntryDebit,
		Delta:        -amount,
		BalanceAfter: st.Balance,
		Reference:    ref,
		CreatedAt:    now,
	})
	if err != nil {
		return Receipt{}, err
	}

	l.log.Info().
		Str("student_id", st.ID).
		Int64("delta", -amount).
		Int64("balance", st.Balance).
		Str("reference", ref).
		Msg("Tokens debited")

	today := l.Today()
	return Receipt{
		StudentID:      st.ID,
		Delta:          -amount,
		Balance:        st.Balance,
		DailyEarned:    dailycap.EffectiveEarned(st, today),
		RemainingToday: l.cap.Remaining(st, today),
	}, nil
}

// SetBalance overwrites the balance as an admin correction. Daily earnings
// are left alone.
func (l *Ledger) SetBalance(ctx context.Context, studentID string, balance int64) (Receipt, error) {
	if balance < 0 {
		return Receipt{}, ErrNegativeBalance
	}
	var rc Receipt
	err := l.store.Serialize(ctx, studentID, func(tx *store.Tx) error {
		st, err := tx.LockStudent(ctx, studentID)
		if err != nil {
			return err
		}
		now := l.Now()
		delta := balance - st.Balance
		if err := tx.SetBalance(ctx, st.ID, balance, now); err != nil {
			return err
		}
		if delta != 0 {
			err = tx.AppendLedgerEntry(ctx, &store.LedgerEntry{
				StudentID:    st.ID,
				Kind:         store.EntryAdjust,
				Delta:        delta,
				BalanceAfter: balance,
				Reference:    "admin",
				CreatedAt:    now,
			})
			if err != nil {
				return err
			}
		}
		st.Balance = balance
		today := l.Today()
		rc = Receipt{
			StudentID:      st.ID,
			Delta:          delta,
			Balance:        balance,
			DailyEarned:    dailycap.EffectiveEarned(st, today),
			RemainingToday: l.cap.Remaining(st, today),
		}
		return nil
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("set balance %s: %w", studentID, err)
	}

	l.log.Info().
		Str("student_id", studentID).
		Int64("delta", rc.Delta).
		Int64("balance", rc.Balance).
		Msg("Balance overridden by admin")
	return rc, nil
}

// Balance reads the student's current balance and daily standing.
func (l *Ledger) Balance(ctx context.Context, studentID string) (Receipt, error) {
	st, err := l.store.Student(ctx, studentID)
	if err != nil {
		return Receipt{}, fmt.Errorf("balance %s: %w", studentID, err)
	}
	today := l.Today()
	return Receipt{
		StudentID:      st.ID,
		Balance:        st.Balance,
		DailyEarned:    dailycap.EffectiveEarned(st, today),
		RemainingToday: l.cap.Remaining(st, today),
	}, nil
}

// History returns the student's latest ledger entries, newest first.
func (l *Ledger) History(ctx context.Context, studentID string, limit int) ([]store.LedgerEntry, error) {
	if _, err := l.store.Student(ctx, studentID); err != nil {
		return nil, fmt.Errorf("history %s: %w", studentID, err)
	}
	return l.store.LedgerEntries(ctx, studentID, limit)
}

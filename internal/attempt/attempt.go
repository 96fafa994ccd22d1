// Package attempt settles a finished graded attempt: it pays the reward
// within the daily cap, carries the missed items forward and consumes the
// approval, all in one step per student.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/abhisek/wordmaster/internal/ledger"
	"github.com/abhisek/wordmaster/internal/metrics"
	"github.com/abhisek/wordmaster/internal/reward"
	"github.com/abhisek/wordmaster/internal/store"
	"github.com/abhisek/wordmaster/internal/testrequest"
	"github.com/abhisek/wordmaster/internal/wronganswers"
	"github.com/rs/zerolog"
)

var ErrInvalidScore = errors.New("score must not be negative")

// Submission is what the quiz reports when a graded attempt ends.
type Submission struct {
	StudentID string                `json:"student_id"`
	RequestID string                `json:"request_id"`
	RawScore  int                   `json:"raw_score"`
	Review    bool                  `json:"review"`
	Answers   []wronganswers.Answer `json:"answers"`
}

// Result is the authoritative outcome returned to the quiz.
type Result struct {
	Raw            int64            `json:"raw"`
	Granted        int64            `json:"granted"`
	Capped         bool             `json:"capped"`
	CappedReason   reward.CapReason `json:"capped_reason,omitempty"`
	Balance        int64            `json:"balance"`
	DailyEarned    int64            `json:"daily_earned"`
	RemainingToday int64            `json:"remaining_today"`
	WrongItemIDs   []string         `json:"wrong_item_ids"`
}

// Service completes and abandons graded attempts.
type Service struct {
	store    *store.Store
	ledger   *ledger.Ledger
	requests *testrequest.Service
	calc     reward.Calculator
	log      zerolog.Logger
}

// NewService wires the attempt flow.
func NewService(st *store.Store, l *ledger.Ledger, requests *testrequest.Service, calc reward.Calculator, log zerolog.Logger) *Service {
	return &Service{
		store:    st,
		ledger:   l,
		requests: requests,
		calc:     calc,
		log:      log.With().Str("component", "attempt").Logger(),
	}
}

// Complete pays out a finished attempt. The request must be approved and
// belong to the student; otherwise nothing changes. The daily cap is read
// and the credit applied under the same lock, so two submissions racing
// for the last tokens of the day cannot both be paid in full. A capped
// attempt still completes with a reduced or zero grant.
func (s *Service) Complete(ctx context.Context, sub Submission) (*Result, error) {
	if sub.RawScore < 0 {
		return nil, ErrInvalidScore
	}

	var res Result
	err := s.store.Serialize(ctx, sub.StudentID, func(tx *store.Tx) error {
		student, err := tx.LockStudent(ctx, sub.StudentID)
		if err != nil {
			return err
		}
		if _, err := s.requests.ApprovedTx(ctx, tx, sub.RequestID, sub.StudentID); err != nil {
			return err
		}

		today := s.ledger.Today()
		remaining := s.ledger.Cap().Remaining(student, today)
		out := s.calc.Compute(sub.RawScore, sub.Review, remaining)

		rc, err := s.ledger.CreditTx(ctx, tx, student, out.Granted, today, sub.RequestID)
		if err != nil {
			return err
		}

		wrong := wronganswers.Missed(sub.Answers)
		if err := tx.SetWrongItems(ctx, sub.StudentID, wrong, s.ledger.Now()); err != nil {
			return err
		}

		if err := s.requests.ConsumeTx(ctx, tx, sub.RequestID, sub.StudentID); err != nil {
			return err
		}

		res = Result{
			Raw:            out.Raw,
			Granted:        out.Granted,
			Capped:         out.Capped,
			CappedReason:   out.Reason,
			Balance:        rc.Balance,
			DailyEarned:    rc.DailyEarned,
			RemainingToday: rc.RemainingToday,
			WrongItemIDs:   wrong,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, testrequest.ErrInvalidTransition) || errors.Is(err, testrequest.ErrWrongStudent) {
			s.log.Error().Err(err).
				Str("student_id", sub.StudentID).
				Str("request_id", sub.RequestID).
				Msg("Attempt submitted without an approved request")
		}
		return nil, fmt.Errorf("complete attempt %s: %w", sub.RequestID, err)
	}

	metrics.TokensCredited.Add(float64(res.Granted))
	metrics.RewardsTotal.WithLabelValues(strconv.FormatBool(sub.Review), capLabel(res.CappedReason)).Inc()
	metrics.TestRequestTransitions.WithLabelValues("consumed").Inc()
	s.log.Info().
		Str("student_id", sub.StudentID).
		Str("request_id", sub.RequestID).
		Int("score", sub.RawScore).
		Bool("review", sub.Review).
		Int64("granted", res.Granted).
		Str("capped_reason", string(res.CappedReason)).
		Int("wrong_items", len(res.WrongItemIDs)).
		Msg("Attempt completed")
	return &res, nil
}

// Abandon consumes an approved request when the student leaves the attempt
// without finishing. No reward is paid and the wrong-item list is kept.
func (s *Service) Abandon(ctx context.Context, requestID string) error {
	return s.requests.Consume(ctx, requestID)
}

func capLabel(r reward.CapReason) string {
	switch r {
	case reward.DailyLimitReached:
		return "daily_limit"
	case reward.PartialGrant:
		return "partial"
	default:
		return "none"
	}
}

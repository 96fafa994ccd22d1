// Package testrequest runs the approval workflow that gates graded
// attempts: a student asks, an admin approves or rejects, and an approved
// request is consumed when the attempt ends.
package testrequest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/wordmaster/internal/cooldown"
	"github.com/abhisek/wordmaster/internal/metrics"
	"github.com/abhisek/wordmaster/internal/notify"
	"github.com/abhisek/wordmaster/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidTransition = errors.New("invalid test request transition")
	ErrWrongStudent      = errors.New("test request belongs to another student")
)

// Service drives test requests through pending, approved or rejected, and
// consumed.
type Service struct {
	store    *store.Store
	guard    cooldown.Guard
	notifier notify.Notifier
	log      zerolog.Logger

	// Now returns the current time. Tests replace it.
	Now func() time.Time
}

// NewService creates the test request workflow.
func NewService(st *store.Store, guard cooldown.Guard, notifier notify.Notifier, log zerolog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		store:    st,
		guard:    guard,
		notifier: notifier,
		log:      log.With().Str("component", "testrequest").Logger(),
		Now:      time.Now,
	}
}

// Request asks for a graded attempt. A student with an active request gets
// that request back unchanged, so repeated calls are safe. Otherwise the
// cooldown is checked and a new pending request is created, stamping the
// student's last test time. The boolean reports whether a request was
// created.
func (s *Service) Request(ctx context.Context, studentID string) (*store.TestRequest, bool, error) {
	var (
		out     *store.TestRequest
		created bool
	)
	err := s.store.Serialize(ctx, studentID, func(tx *store.Tx) error {
		student, err := tx.LockStudent(ctx, studentID)
		if err != nil {
			return err
		}

		active, err := tx.ActiveTestRequest(ctx, studentID)
		if err == nil {
			out = active
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		now := s.Now()
		if err := s.guard.Check(student.LastTestTime, now).Err(); err != nil {
			return err
		}

		tr := &store.TestRequest{
			ID:          uuid.New().String(),
			StudentID:   studentID,
			StudentName: student.Name,
			Status:      store.TestRequestPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertTestRequest(ctx, tr); err != nil {
			return err
		}
		if err := tx.SetLastTestTime(ctx, studentID, now); err != nil {
			return err
		}
		out, created = tr, true
		return nil
	})
	if err != nil {
		var active *cooldown.ActiveError
		if errors.As(err, &active) {
			metrics.TestRequestTransitions.WithLabelValues("cooldown").Inc()
			s.log.Debug().
				Str("student_id", studentID).
				Int("remaining_minutes", active.RemainingMinutes).
				Msg("Test request blocked by cooldown")
		}
		return nil, false, fmt.Errorf("request test for %s: %w", studentID, err)
	}

	if created {
		metrics.TestRequestTransitions.WithLabelValues("requested").Inc()
		s.log.Info().Str("student_id", studentID).Str("request_id", out.ID).Msg("Test requested")
		notify.Send(ctx, s.notifier, s.log, notify.Event{
			Type:       notify.TestRequestCreated,
			StudentID:  studentID,
			RequestID:  out.ID,
			OccurredAt: out.CreatedAt,
		})
	}
	return out, created, nil
}

// Approve lets a pending request proceed to a graded attempt.
func (s *Service) Approve(ctx context.Context, id string) (*store.TestRequest, error) {
	return s.decide(ctx, id, store.TestRequestApproved, notify.TestRequestApproved)
}

// Reject turns down a pending request.
func (s *Service) Reject(ctx context.Context, id string) (*store.TestRequest, error) {
	return s.decide(ctx, id, store.TestRequestRejected, notify.TestRequestRejected)
}

func (s *Service) decide(ctx context.Context, id string, to store.TestRequestStatus, event notify.EventType) (*store.TestRequest, error) {
	tr, err := s.store.TestRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s test request %s: %w", to, id, err)
	}

	err = s.store.Serialize(ctx, tr.StudentID, func(tx *store.Tx) error {
		cur, err := tx.TestRequest(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status != store.TestRequestPending {
			return fmt.Errorf("%w: %s request cannot become %s", ErrInvalidTransition, cur.Status, to)
		}
		now := s.Now()
		moved, err := tx.TransitionTestRequest(ctx, id, store.TestRequestPending, to, now)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: request is no longer pending", ErrInvalidTransition)
		}
		cur.Status, cur.UpdatedAt = to, now
		tr = cur
		return nil
	})
	if err != nil {
		s.logTransitionError(err, id, string(to))
		return nil, fmt.Errorf("%s test request %s: %w", to, id, err)
	}

	metrics.TestRequestTransitions.WithLabelValues(string(to)).Inc()
	s.log.Info().Str("request_id", id).Str("student_id", tr.StudentID).Str("status", string(to)).Msg("Test request decided")
	notify.Send(ctx, s.notifier, s.log, notify.Event{
		Type:       event,
		StudentID:  tr.StudentID,
		RequestID:  id,
		OccurredAt: tr.UpdatedAt,
	})
	return tr, nil
}

// Consume removes an approved request once its attempt has ended, whether
// the student finished or left early.
func (s *Service) Consume(ctx context.Context, id string) error {
	tr, err := s.store.TestRequest(ctx, id)
	if err != nil {
		return fmt.Errorf("consume test request %s: %w", id, err)
	}
	err = s.store.Serialize(ctx, tr.StudentID, func(tx *store.Tx) error {
		return s.ConsumeTx(ctx, tx, id, tr.StudentID)
	})
	if err != nil {
		s.logTransitionError(err, id, "consumed")
		return fmt.Errorf("consume test request %s: %w", id, err)
	}
	metrics.TestRequestTransitions.WithLabelValues("consumed").Inc()
	s.log.Info().Str("request_id", id).Str("student_id", tr.StudentID).Msg("Test request consumed")
	return nil
}

// ApprovedTx returns the request if it is approved and owned by studentID.
// It runs inside the student's serialized transaction.
func (s *Service) ApprovedTx(ctx context.Context, tx *store.Tx, id, studentID string) (*store.TestRequest, error) {
	cur, err := tx.TestRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.StudentID != studentID {
		return nil, ErrWrongStudent
	}
	if cur.Status != store.TestRequestApproved {
		return nil, fmt.Errorf("%w: %s request cannot be consumed", ErrInvalidTransition, cur.Status)
	}
	return cur, nil
}

// ConsumeTx deletes an approved request inside the student's serialized
// transaction.
func (s *Service) ConsumeTx(ctx context.Context, tx *store.Tx, id, studentID string) error {
	if _, err := s.ApprovedTx(ctx, tx, id, studentID); err != nil {
		return err
	}
	return tx.DeleteTestRequest(ctx, id)
}

// Active returns the student's pending or approved request, or
// store.ErrNotFound.
func (s *Service) Active(ctx context.Context, studentID string) (*store.TestRequest, error) {
	return s.store.ActiveTestRequest(ctx, studentID)
}

// Get returns a request by id.
func (s *Service) Get(ctx context.Context, id string) (*store.TestRequest, error) {
	return s.store.TestRequest(ctx, id)
}

// List returns requests for the admin queue, newest first.
func (s *Service) List(ctx context.Context, opts store.ListOpts) ([]store.TestRequest, error) {
	return s.store.TestRequests(ctx, opts)
}

// PendingCount returns the number of requests awaiting a decision.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.store.CountTestRequests(ctx, store.TestRequestPending)
}

// CooldownFor reports whether the student could request now.
func (s *Service) CooldownFor(st *store.Student) cooldown.Decision {
	return s.guard.Check(st.LastTestTime, s.Now())
}

func (s *Service) logTransitionError(err error, id, to string) {
	if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrWrongStudent) {
		metrics.TestRequestTransitions.WithLabelValues("invalid").Inc()
		s.log.Error().Err(err).Str("request_id", id).Str("to", to).Msg("Invalid test request transition")
	}
}

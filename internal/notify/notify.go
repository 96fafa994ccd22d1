// Package notify publishes economy events so admins learn about new
// requests without polling.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType names an economy event.
type EventType string

const (
	TestRequestCreated  EventType = "test_request.created"
	TestRequestApproved EventType = "test_request.approved"
	TestRequestRejected EventType = "test_request.rejected"
	SettlementRequested EventType = "settlement.requested"
	SettlementCompleted EventType = "settlement.completed"
)

// Event is the message body published for every economy event.
type Event struct {
	Type       EventType `json:"type"`
	StudentID  string    `json:"student_id"`
	RequestID  string    `json:"request_id"`
	Tokens     int64     `json:"tokens,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier delivers events to interested parties.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Send publishes event and logs a failure instead of returning it. Callers
// run it after their transaction commits.
func Send(ctx context.Context, n Notifier, log zerolog.Logger, event Event) {
	if n == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := n.Publish(ctx, event); err != nil {
		log.Warn().Err(err).
			Str("event", string(event.Type)).
			Str("request_id", event.RequestID).
			Msg("Failed to publish event")
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the types of everything published so far, in order.
func (r *Recorder) Types() []EventType {
	events := r.Events()
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

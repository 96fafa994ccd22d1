// Package cooldown enforces the minimum wait between two graded tests.
package cooldown

import (
	"fmt"
	"time"
)

// DefaultWindow is the minimum gap between two graded-attempt requests.
const DefaultWindow = 30 * time.Minute

// ActiveError reports that a new request must wait.
type ActiveError struct {
	RemainingMinutes int
}

func (e *ActiveError) Error() string {
	return fmt.Sprintf("cooldown active: %d minutes remaining", e.RemainingMinutes)
}

// Decision is the outcome of a cooldown check.
type Decision struct {
	Allowed          bool
	RemainingMinutes int
}

// Err returns an *ActiveError for a blocked decision and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &ActiveError{RemainingMinutes: d.RemainingMinutes}
}

// Guard decides whether a student may request another graded attempt.
type Guard struct {
	Window time.Duration
}

// New returns a Guard with the given window, or DefaultWindow when the
// window is not positive.
func New(window time.Duration) Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	return Guard{Window: window}
}

// Check compares the last request time with now. A nil lastTest always
// passes. The remaining wait is reported in whole minutes rounded up, so a
// blocked student never sees "0 minutes". A lastTest in the future is
// treated as if it happened at now.
func (g Guard) Check(lastTest *time.Time, now time.Time) Decision {
	if lastTest == nil {
		return Decision{Allowed: true}
	}
	elapsed := now.Sub(*lastTest)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= g.Window {
		return Decision{Allowed: true}
	}
	return Decision{RemainingMinutes: ceilMinutes(g.Window - elapsed)}
}

func ceilMinutes(d time.Duration) int {
	m := int(d / time.Minute)
	if d%time.Minute != 0 {
		m++
	}
	return m
}

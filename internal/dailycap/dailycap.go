// Package dailycap tracks how many tokens a student earned today and how
// many more the daily limit allows. The counter rolls over at local midnight.
package dailycap

import (
	"time"

	"github.com/abhisek/wordmaster/internal/store"
)

// DefaultCap is the maximum number of tokens a student can earn per day.
const DefaultCap int64 = 20

// dayLayout formats calendar day keys stored in last_earn_date.
const dayLayout = "2006-01-02"

// Tracker computes how much a student can still earn today.
type Tracker struct {
	Cap      int64
	Location *time.Location
}

// New returns a Tracker. A non-positive cap falls back to DefaultCap and a
// nil location to time.Local.
func New(limit int64, loc *time.Location) Tracker {
	if limit <= 0 {
		limit = DefaultCap
	}
	if loc == nil {
		loc = time.Local
	}
	return Tracker{Cap: limit, Location: loc}
}

// Today returns the calendar day key for now in the tracker's location.
func (t Tracker) Today(now time.Time) string {
	loc := t.Location
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).Format(dayLayout)
}

// EffectiveEarned returns the student's earnings for today. Counters left
// over from an earlier day count as zero. This is the only place the daily
// rollover rule lives; both the cap check and the credit path call it.
func EffectiveEarned(st *store.Student, today string) int64 {
	if st.LastEarnDate != today {
		return 0
	}
	return st.DailyEarned
}

// Remaining returns how many more tokens the student can earn today.
func (t Tracker) Remaining(st *store.Student, today string) int64 {
	left := t.Cap - EffectiveEarned(st, today)
	if left < 0 {
		return 0
	}
	return left
}

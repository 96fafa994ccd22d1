// Package reward turns a test score into a token amount, trimmed to what
// the daily cap still allows.
package reward

// Defaults for the reward rates.
const (
	DefaultFirstPassRate = 1 // tokens per correct answer on a first pass
	DefaultReviewDivisor = 5 // correct answers per token on a review pass
)

// CapReason explains why a grant was reduced.
type CapReason string

const (
	NotCapped         CapReason = ""
	DailyLimitReached CapReason = "daily limit reached"
	PartialGrant      CapReason = "partial, limit nearly reached"
)

// Outcome is the result of a reward computation.
type Outcome struct {
	Raw     int64
	Granted int64
	Capped  bool
	Reason  CapReason
}

// Calculator turns a quiz score into a token grant.
type Calculator struct {
	FirstPassRate int64
	ReviewDivisor int64
}

// New returns a Calculator, substituting defaults for non-positive values.
func New(firstPassRate, reviewDivisor int64) Calculator {
	if firstPassRate <= 0 {
		firstPassRate = DefaultFirstPassRate
	}
	if reviewDivisor <= 0 {
		reviewDivisor = DefaultReviewDivisor
	}
	return Calculator{FirstPassRate: firstPassRate, ReviewDivisor: reviewDivisor}
}

// Raw returns the uncapped reward for a score.
func (c Calculator) Raw(score int, review bool) int64 {
	if score <= 0 {
		return 0
	}
	if review {
		return int64(score) / c.ReviewDivisor
	}
	return int64(score) * c.FirstPassRate
}

// Compute clamps the raw reward to the remaining daily capacity. With no
// capacity left the grant is zero and flagged as the daily limit. When the
// raw reward overflows the capacity the grant is the capacity and flagged
// as partial.
func (c Calculator) Compute(score int, review bool, remaining int64) Outcome {
	raw := c.Raw(score, review)
	switch {
	case remaining <= 0:
		return Outcome{Raw: raw, Capped: true, Reason: DailyLimitReached}
	case raw > remaining:
		return Outcome{Raw: raw, Granted: remaining, Capped: true, Reason: PartialGrant}
	default:
		return Outcome{Raw: raw, Granted: raw}
	}
}

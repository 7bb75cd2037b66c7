// Package retry implements the workflow engine's per-step retry policy:
// attempt ceilings and exponential backoff with a cap, the way
// orchestration.Orchestrator.calculateRetryDelay computes it for workflow
// steps.
package retry

import "time"

// Policy is a value object describing how a failed step attempt should be
// retried: how many attempts total, the delay before the second attempt,
// the growth factor applied per subsequent attempt, and a ceiling on that
// delay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// Default returns the no-retry policy: one attempt, no backoff.
func Default() Policy {
	return Policy{
		MaxAttempts: 1,
		BaseDelay:   0,
		Multiplier:  1,
		MaxDelay:    60 * time.Second,
	}
}

// New constructs a Policy, substituting defaults for zero-valued fields so
// that a caller supplying only MaxAttempts still gets sane backoff
// behavior.
func New(maxAttempts int, baseDelay time.Duration, multiplier float64, maxDelay time.Duration) Policy {
	p := Default()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if baseDelay > 0 {
		p.BaseDelay = baseDelay
	}
	if multiplier >= 1 {
		p.Multiplier = multiplier
	}
	if maxDelay > 0 {
		p.MaxDelay = maxDelay
	}
	return p
}

// Delay returns the backoff duration to sleep after a failed attempt
// numbered attempt (1-indexed), before starting the next attempt.
// Delay(1) == BaseDelay. The result never exceeds MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	delay := time.Duration(d)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

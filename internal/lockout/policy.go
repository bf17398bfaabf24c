// Package lockout holds the pure policy math for progressive lockouts: how
// long a lock lasts given a key's cumulative lock history. Persistence and
// alerting stay in the engine; this package has no I/O so the escalation
// curve can be tested exhaustively.
package lockout

import (
	"time"
)

// Policy parameterizes one lockout state machine. The same shape serves
// account and IP scopes; only the numbers and the Escalates flag differ.
type Policy struct {
	MaxAttempts   int
	AttemptWindow time.Duration
	BaseDuration  time.Duration
	MaxDuration   time.Duration
	Multiplier    float64
	Escalates     bool
}

// maxExponent caps the escalation exponent so the float math can never
// overflow before the MaxDuration clamp applies.
const maxExponent = 30

// LockDuration computes how long the next lock lasts. priorLockCount is the
// cumulative number of times the key has been locked before this occurrence;
// it is historical and survives successful attempts, so repeat offenders face
// exponentially longer locks until the curve saturates at MaxDuration.
func (p Policy) LockDuration(priorLockCount int) time.Duration {
	if !p.Escalates || p.Multiplier <= 1 || priorLockCount <= 0 {
		return p.clamp(p.BaseDuration)
	}

	exp := priorLockCount
	if exp > maxExponent {
		exp = maxExponent
	}

	d := float64(p.BaseDuration)
	for i := 0; i < exp; i++ {
		d *= p.Multiplier
		if time.Duration(d) >= p.MaxDuration {
			return p.MaxDuration
		}
	}
	return p.clamp(time.Duration(d))
}

func (p Policy) clamp(d time.Duration) time.Duration {
	if d > p.MaxDuration {
		return p.MaxDuration
	}
	if d < p.BaseDuration {
		return p.BaseDuration
	}
	return d
}

// WindowStart returns the instant failures start counting from: the sliding
// window floor, raised to the last explicit window reset (a successful
// attempt resets the rolling window without touching lock history).
func (p Policy) WindowStart(now, windowResetAt time.Time) time.Time {
	start := now.Add(-p.AttemptWindow)
	if windowResetAt.After(start) {
		return windowResetAt
	}
	return start
}

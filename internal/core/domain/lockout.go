package domain

import "time"

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 10 * time.Minute
)

// LoginState is the lockout bookkeeping carried on every account.
type LoginState struct {
	FailedAttempts int        `json:"-"`
	LockUntil      *time.Time `json:"-"`
}

// Locked reports whether the state is locked at now. A LockUntil in the past
// counts as unlocked even though it is still stored.
func (s LoginState) Locked(now time.Time) bool {
	return s.LockUntil != nil && s.LockUntil.After(now)
}

// LockoutPolicy decides when repeated failures lock an account.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// NewLockoutPolicy returns a policy, substituting defaults for non-positive values.
func NewLockoutPolicy(threshold int, duration time.Duration) LockoutPolicy {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	return LockoutPolicy{Threshold: threshold, Duration: duration}
}

// CheckLoginAllowed fails with an account_locked error while the lock holds.
// It never resets the counter.
func (p LockoutPolicy) CheckLoginAllowed(s LoginState, now time.Time) error {
	if !s.Locked(now) {
		return nil
	}
	return &Error{
		Kind:    KindAccountLocked,
		Message: ErrAccountLocked.Message,
		Until:   *s.LockUntil,
	}
}

// RecordFailure returns the state after one more failed attempt. The
// threshold is compared against the incremented count.
func (p LockoutPolicy) RecordFailure(s LoginState, now time.Time) LoginState {
	next := LoginState{FailedAttempts: s.FailedAttempts + 1, LockUntil: s.LockUntil}
	if next.FailedAttempts >= p.Threshold {
		until := now.Add(p.Duration)
		next.LockUntil = &until
	}
	return next
}

// RecordSuccess returns the cleared state.
func (p LockoutPolicy) RecordSuccess() LoginState {
	return LoginState{}
}

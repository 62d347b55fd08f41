package lockout

import (
	"errors"
	"time"
)

// Defaults for a new configuration.
const (
	DefaultMaxAttempts = 5
	DefaultDuration    = 15 * time.Minute
)

// State is the lockout-relevant slice of a credential record.
type State struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// Policy bundles the threshold and the lock length.
type Policy struct {
	MaxAttempts int
	Duration    time.Duration
}

// Validate rejects a policy that could never lock or would lock for no time.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.New("Lockout MaxAttempts must be >= 1")
	}
	if p.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}
	return nil
}

// IsLocked reports whether now falls strictly before the lock expiry.
func IsLocked(s State, now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// OnFailure records one failed attempt. When the new count reaches maxAttempts the
// account is locked until now+duration. The counter is not reset by locking.
func OnFailure(s State, maxAttempts int, duration time.Duration, now time.Time) State {
	next := State{
		FailedAttempts: s.FailedAttempts + 1,
		LockedUntil:    s.LockedUntil,
	}
	if next.FailedAttempts < 0 {
		next.FailedAttempts = 0
	}
	if next.FailedAttempts >= maxAttempts {
		until := now.Add(duration)
		next.LockedUntil = &until
	}
	return next
}

// OnSuccess clears the counter and any lock.
func OnSuccess(State) State {
	return State{}
}

// Apply is OnFailure with the policy's parameters.
func (p Policy) Apply(s State, now time.Time) State {
	return OnFailure(s, p.MaxAttempts, p.Duration, now)
}

// LockedUntil is the lock expiry a failure at now would set.
func (p Policy) LockedUntil(now time.Time) time.Time {
	return now.Add(p.Duration)
}

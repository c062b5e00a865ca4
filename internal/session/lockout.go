package session

import (
	"fmt"
	"math"
	"time"

	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/models"
)

const (
	// MaxAttempts consecutive failures raise the lock level by one.
	MaxAttempts = 3
	// PermanentLockLevel is the level at which the lock no longer expires.
	PermanentLockLevel = 4
)

var lockDurations = map[int]time.Duration{
	1: 1 * time.Minute,
	2: 3 * time.Minute,
	3: 5 * time.Minute,
}

// LockDuration returns how long lock level level lasts. permanent is true
// from PermanentLockLevel on.
func LockDuration(level int) (d time.Duration, permanent bool) {
	if level >= PermanentLockLevel {
		return 0, true
	}
	return lockDurations[level], false
}

type failureOutcome struct {
	attemptsRemaining int
	lockedFor         time.Duration
	permanent         bool
}

func (o failureOutcome) locked() bool {
	return o.permanent || o.lockedFor > 0
}

// lockedError reports a lock that blocks authentication before the secret is
// even checked. nil means the credential may attempt.
func lockedError(c *models.LoginCredential, now time.Time) error {
	if c.PermanentlyLocked {
		return apperror.New(apperror.AccountLocked,
			"Account is permanently locked after repeated failed logins. Contact an administrator.")
	}
	if c.LockUntil != nil && now.Before(*c.LockUntil) {
		remaining := int(math.Ceil(c.LockUntil.Sub(now).Seconds()))
		return apperror.Newf(apperror.TemporarilyLocked,
			"Account is temporarily locked. Try again in %d seconds.", remaining).
			With("remaining_seconds", remaining).
			With("lock_level", c.LockLevel)
	}
	return nil
}

// registerFailure applies one failed attempt to c.
func registerFailure(c *models.LoginCredential, now time.Time) failureOutcome {
	c.Attempts++
	if c.Attempts < MaxAttempts {
		return failureOutcome{attemptsRemaining: MaxAttempts - c.Attempts}
	}

	c.Attempts = 0
	if c.LockLevel < PermanentLockLevel {
		c.LockLevel++
	}

	d, permanent := LockDuration(c.LockLevel)
	if permanent {
		c.PermanentlyLocked = true
		c.LockUntil = nil
		return failureOutcome{permanent: true}
	}
	until := now.Add(d)
	c.LockUntil = &until
	return failureOutcome{lockedFor: d}
}

func resetLock(c *models.LoginCredential) {
	c.Attempts = 0
	c.LockLevel = 0
	c.LockUntil = nil
	c.PermanentlyLocked = false
}

func (o failureOutcome) err(level int) error {
	switch {
	case o.permanent:
		return apperror.New(apperror.InvalidCredentials,
			"Invalid credentials. Account is now permanently locked.").
			With("locked", true).
			With("lock_level", level)
	case o.locked():
		minutes := int(o.lockedFor / time.Minute)
		return apperror.New(apperror.InvalidCredentials,
			fmt.Sprintf("Invalid credentials. Account locked for %d %s.", minutes, plural(minutes, "minute"))).
			With("locked", true).
			With("lock_level", level).
			With("lock_seconds", int(o.lockedFor.Seconds()))
	default:
		return apperror.New(apperror.InvalidCredentials,
			fmt.Sprintf("Invalid credentials. %d %s remaining.", o.attemptsRemaining, plural(o.attemptsRemaining, "attempt"))).
			With("attempts_remaining", o.attemptsRemaining)
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

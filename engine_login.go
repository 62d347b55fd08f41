package userauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/userauth/lockout"
	"github.com/MrEthical07/userauth/password"
)

// Login verifies email and password and returns a new token bundle. Every
// earlier refresh token of the account is revoked.
//
// An unknown email and a wrong password both yield ErrInvalidCredentials. A locked
// account yields ErrAccountLocked before the password is looked at, and the failed
// attempt that reaches the threshold yields ErrAccountLocked as well.
func (e *Engine) Login(ctx context.Context, email, pw string) (*TokenBundle, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	defer e.observeSince(MetricLoginLatency, time.Now())

	email = normalizeEmail(email)
	rec, err := e.credentials.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if rec == nil {
		// Same KDF cost as a real comparison.
		_, _ = e.passwordHash.Verify(pw, e.dummyHash)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLoginFailure, 0, email, false, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	now := e.now()
	if lockout.IsLocked(lockoutState(rec), now) {
		e.metricInc(MetricLoginLockedRejected)
		e.emitAudit(ctx, AuditLoginFailure, rec.ID, rec.Email, false, ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	ok, err := e.passwordHash.Verify(pw, rec.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrPasswordTooLong) {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, e.recordPasswordFailure(ctx, rec, now, MetricLoginFailure, AuditLoginFailure)
	}

	switch rec.Status {
	case StatusSuspended:
		e.metricInc(MetricAccountDisabled)
		e.emitAudit(ctx, AuditLoginFailure, rec.ID, rec.Email, false, ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	case StatusDeleted:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLoginFailure, rec.ID, rec.Email, false, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	applyLockoutState(rec, lockout.OnSuccess(lockoutState(rec)))
	rec.LastLoginAt = &now
	rec.UpdatedAt = now
	e.maybeUpgradeHash(rec, pw)

	if err := e.credentials.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save account: %w", err)
	}

	bundle, err := e.issueBundle(ctx, rec, now, true)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditLoginSuccess, rec.ID, rec.Email, true, nil, nil)

	return bundle, nil
}

// recordPasswordFailure applies one wrong password against the lockout counter and
// returns the error to report. failMetric and event describe the calling flow.
func (e *Engine) recordPasswordFailure(ctx context.Context, rec *CredentialRecord, now time.Time, failMetric MetricID, event string) error {
	var state lockout.State
	if fc, ok := e.credentials.(FailureCounter); ok {
		attempts, lockedUntil, err := fc.RecordLoginFailure(ctx, rec.ID, e.lockout.MaxAttempts, e.lockout.LockedUntil(now))
		if err != nil {
			return fmt.Errorf("record login failure: %w", err)
		}
		state = lockout.State{FailedAttempts: attempts, LockedUntil: lockedUntil}
	} else {
		state = e.lockout.Apply(lockoutState(rec), now)
		applyLockoutState(rec, state)
		rec.UpdatedAt = now
		if err := e.credentials.Save(ctx, rec); err != nil {
			return fmt.Errorf("record login failure: %w", err)
		}
	}

	e.metricInc(failMetric)
	if lockout.IsLocked(state, now) {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, AuditAccountLocked, rec.ID, rec.Email, false, ErrAccountLocked, map[string]string{
			"attempts": fmt.Sprint(state.FailedAttempts),
		})
		e.logger.Info("account locked", slog.Int64("user_id", rec.ID), slog.Int("attempts", state.FailedAttempts))
		return ErrAccountLocked
	}

	e.emitAudit(ctx, event, rec.ID, rec.Email, false, ErrInvalidCredentials, nil)
	return ErrInvalidCredentials
}

// maybeUpgradeHash re-hashes pw in place when the stored hash is legacy bcrypt or
// uses weaker Argon2id parameters. Failures keep the old hash.
func (e *Engine) maybeUpgradeHash(rec *CredentialRecord, pw string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.passwordHash.NeedsUpgrade(rec.PasswordHash)
	if err != nil || !needs {
		return
	}
	upgraded, err := e.passwordHash.Hash(pw)
	if err != nil {
		e.logger.Warn("password hash upgrade failed", slog.Int64("user_id", rec.ID), slog.Any("error", err))
		return
	}
	rec.PasswordHash = upgraded
	e.metricInc(MetricPasswordHashUpgraded)
}

func lockoutState(rec *CredentialRecord) lockout.State {
	return lockout.State{
		FailedAttempts: rec.FailedLoginAttempts,
		LockedUntil:    rec.AccountLockedUntil,
	}
}

func applyLockoutState(rec *CredentialRecord, s lockout.State) {
	rec.FailedLoginAttempts = s.FailedAttempts
	rec.AccountLockedUntil = s.LockedUntil
}

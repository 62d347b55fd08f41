package userauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/userauth/lockout"
	"github.com/MrEthical07/userauth/password"
)

// ChangePassword replaces the password of an authenticated account after checking
// the current one, revokes every refresh token and notifies the owner.
//
// A wrong current password counts against the lockout exactly like a failed login,
// and a locked account is rejected with ErrAccountLocked before the password is
// checked.
func (e *Engine) ChangePassword(ctx context.Context, email, current, next string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if current == "" {
		return fmt.Errorf("%w: current password is required", ErrInvalidInput)
	}
	if err := e.checkPasswordPolicy(next); err != nil {
		return err
	}

	rec, err := e.credentials.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	if rec == nil || rec.Status == StatusDeleted {
		return ErrNotFound
	}

	now := e.now()
	if lockout.IsLocked(lockoutState(rec), now) {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, AuditPasswordChange, rec.ID, rec.Email, false, ErrAccountLocked, nil)
		return ErrAccountLocked
	}
	if rec.Status == StatusSuspended {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, AuditPasswordChange, rec.ID, rec.Email, false, ErrAccountDisabled, nil)
		return ErrAccountDisabled
	}

	ok, err := e.passwordHash.Verify(current, rec.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrPasswordTooLong) {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return e.recordPasswordFailure(ctx, rec, now, MetricPasswordChangeFailure, AuditPasswordChange)
	}

	if same, err := e.passwordHash.Verify(next, rec.PasswordHash); err == nil && same {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, AuditPasswordChange, rec.ID, rec.Email, false, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	hash, err := e.hashPassword(next)
	if err != nil {
		return err
	}

	rec.PasswordHash = hash
	applyLockoutState(rec, lockout.OnSuccess(lockoutState(rec)))
	rec.UpdatedAt = now
	if err := e.credentials.Save(ctx, rec); err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	if err := e.refreshStore.RevokeAllForUser(ctx, rec.ID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}

	e.notifier.NotifyPasswordChanged(rec.Email, rec.Username)
	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, AuditPasswordChange, rec.ID, rec.Email, true, nil, nil)
	return nil
}

// DeleteAccount removes the account of email after revoking its refresh tokens.
// Access tokens already issued stay valid until they expire, but every later
// Refresh fails.
func (e *Engine) DeleteAccount(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}

	rec, err := e.credentials.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	if rec == nil {
		return ErrNotFound
	}

	if err := e.refreshStore.RevokeAllForUser(ctx, rec.ID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	if err := e.credentials.Delete(ctx, rec.ID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	e.logger.Info("account deleted", slog.Int64("user_id", rec.ID))
	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, AuditAccountDeleted, rec.ID, rec.Email, true, nil, nil)
	return nil
}

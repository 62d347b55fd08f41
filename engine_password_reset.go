package userauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/userauth/internal/stores"
	"github.com/MrEthical07/userauth/lockout"
)

// RequestPasswordReset mails a reset token to email. It returns nil for unknown
// or deleted accounts so the response does not reveal which addresses exist.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email = normalizeEmail(email)
	if err := e.allowRequest(ctx, "reset", email); err != nil {
		return err
	}
	e.metricInc(MetricPasswordResetRequest)

	rec, err := e.credentials.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	if rec == nil || rec.Status == StatusDeleted {
		e.emitAudit(ctx, AuditPasswordResetRequest, 0, email, false, ErrNotFound, nil)
		return nil
	}

	token, err := e.tokens.Issue(ctx, stores.KindReset, rec.Email, e.config.PasswordReset.TokenTTL, e.now())
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}

	e.notifier.NotifyPasswordReset(rec.Email, rec.Username, token)
	e.emitAudit(ctx, AuditPasswordResetRequest, rec.ID, rec.Email, true, nil, nil)
	return nil
}

// CheckResetToken reports the email a reset token belongs to without spending it.
func (e *Engine) CheckResetToken(ctx context.Context, token string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	email, err := e.tokens.Peek(ctx, stores.KindReset, token, e.now())
	if err != nil {
		if errors.Is(err, stores.ErrTokenNotFoundOrExpired) {
			return "", ErrInvalidOrExpiredToken
		}
		return "", fmt.Errorf("peek reset token: %w", err)
	}
	return email, nil
}

// ResetPassword sets a new password using a reset token, revokes every refresh
// token of the account and notifies the owner.
//
// The token is claimed before the new hash is written, so two concurrent resets
// with one token cannot both succeed. If the write then fails the token is spent
// and the owner has to request a new one.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	if _, err := e.CheckResetToken(ctx, token); err != nil {
		if errors.Is(err, ErrInvalidOrExpiredToken) {
			e.metricInc(MetricPasswordResetFailure)
		}
		return err
	}

	hash, err := e.hashPassword(newPassword)
	if err != nil {
		return err
	}

	now := e.now()
	email, err := e.tokens.Consume(ctx, stores.KindReset, token, now)
	if err != nil {
		if errors.Is(err, stores.ErrTokenNotFoundOrExpired) {
			e.metricInc(MetricPasswordResetFailure)
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	rec, err := e.credentials.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	if rec == nil {
		return ErrNotFound
	}

	rec.PasswordHash = hash
	applyLockoutState(rec, lockout.OnSuccess(lockoutState(rec)))
	rec.UpdatedAt = now
	if err := e.credentials.Save(ctx, rec); err != nil {
		e.logger.Error("password reset not committed; token spent",
			slog.Int64("user_id", rec.ID), slog.Any("error", err))
		return fmt.Errorf("save account: %w", err)
	}

	if err := e.refreshStore.RevokeAllForUser(ctx, rec.ID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}

	e.notifier.NotifyPasswordChanged(rec.Email, rec.Username)
	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, AuditPasswordReset, rec.ID, rec.Email, true, nil, nil)
	return nil
}

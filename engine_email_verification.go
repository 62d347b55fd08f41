package userauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/userauth/internal/stores"
)

// RequestEmailVerification issues a new verification token for email and hands it
// to the notifier. Earlier tokens stay valid until used or expired.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email = normalizeEmail(email)
	if err := e.allowRequest(ctx, "verify", email); err != nil {
		return err
	}

	rec, err := e.credentials.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	if rec == nil {
		return ErrNotFound
	}
	if rec.EmailVerified {
		return ErrEmailAlreadyVerified
	}

	return e.sendVerification(ctx, rec, e.now())
}

func (e *Engine) sendVerification(ctx context.Context, rec *CredentialRecord, now time.Time) error {
	token, err := e.tokens.Issue(ctx, stores.KindVerification, rec.Email, e.config.EmailVerification.TokenTTL, now)
	if err != nil {
		return fmt.Errorf("issue verification token: %w", err)
	}

	e.notifier.NotifyVerification(rec.Email, rec.Username, token)
	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(ctx, AuditEmailVerificationRequest, rec.ID, rec.Email, true, nil, nil)
	return nil
}

// VerifyEmail consumes a verification token and marks its address verified.
// The token is spent even when the address was already verified.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email, err := e.tokens.Consume(ctx, stores.KindVerification, token, e.now())
	if err != nil {
		if errors.Is(err, stores.ErrTokenNotFoundOrExpired) {
			e.metricInc(MetricEmailVerificationFailure)
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("consume verification token: %w", err)
	}

	rec, err := e.credentials.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	if rec == nil {
		return ErrNotFound
	}

	if !rec.EmailVerified {
		rec.EmailVerified = true
		rec.UpdatedAt = e.now()
		if err := e.credentials.Save(ctx, rec); err != nil {
			return fmt.Errorf("save account: %w", err)
		}
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, AuditEmailVerified, rec.ID, rec.Email, true, nil, nil)
	return nil
}

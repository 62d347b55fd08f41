package userauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/userauth/refresh"
)

// Refresh mints a new access token from a usable refresh token. The refresh token
// itself is returned unchanged; it is only rotated by Login.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenBundle, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !refresh.WellFormed(refreshToken) {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrRefreshTokenInvalid
	}

	now := e.now()
	rec, err := e.refreshStore.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			e.metricInc(MetricRefreshFailure)
			return nil, ErrRefreshTokenInvalid
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	if !rec.Usable(now) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditRefresh, rec.UserID, "", false, ErrRefreshTokenInvalid, nil)
		return nil, ErrRefreshTokenInvalid
	}

	user, err := e.credentials.FindByID(ctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if user == nil || user.Status == StatusDeleted {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrRefreshTokenInvalid
	}
	if user.Status == StatusSuspended {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrAccountDisabled
	}

	access, err := e.jwtManager.Issue(user.Email, []string{string(user.Role)}, e.config.JWT.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditRefresh, user.ID, user.Email, true, nil, nil)

	return &TokenBundle{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    e.accessExpiresIn(),
		Subject:      summarize(user),
	}, nil
}

// Logout revokes every refresh token of the account. Repeating it is harmless.
// Access tokens already issued stay valid until they expire.
func (e *Engine) Logout(ctx context.Context, email string) error {
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

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, AuditLogout, rec.ID, rec.Email, true, nil, nil)
	return nil
}

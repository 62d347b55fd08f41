package userauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Register creates an ACTIVE, unverified USER account and signs it in.
// It fails with ErrAlreadyExists when the email or username is taken.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*TokenBundle, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email := normalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)
	if email == "" || username == "" || !validEmail(email) {
		return nil, ErrInvalidInput
	}
	if err := e.checkPasswordPolicy(in.Password); err != nil {
		return nil, err
	}

	exists, err := e.credentials.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if !exists {
		exists, err = e.credentials.ExistsByUsername(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("check username: %w", err)
		}
	}
	if exists {
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(ctx, AuditRegister, 0, email, false, ErrAlreadyExists, nil)
		return nil, ErrAlreadyExists
	}

	hash, err := e.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := e.now()
	rec := &CredentialRecord{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         RoleUser,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// The unique constraints decide races the Exists checks cannot.
	if err := e.credentials.Save(ctx, rec); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			e.metricInc(MetricRegisterDuplicate)
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("save account: %w", err)
	}

	bundle, err := e.issueBundle(ctx, rec, now, false)
	if err != nil {
		return nil, err
	}

	if e.config.EmailVerification.SendOnRegister {
		if err := e.sendVerification(ctx, rec, now); err != nil {
			e.logger.Warn("verification email not sent after registration",
				slog.Int64("user_id", rec.ID), slog.Any("error", err))
		}
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, AuditRegister, rec.ID, rec.Email, true, nil, nil)

	return bundle, nil
}

package userauth

import "errors"

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while the lockout window is open, and by the
	// failed attempt that opens it.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled is returned for a suspended account after a correct password.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAlreadyExists reports an email or username collision on registration.
	ErrAlreadyExists = errors.New("account already exists")
	// ErrRefreshTokenInvalid covers unknown, revoked and expired refresh tokens.
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")
	// ErrInvalidOrExpiredToken covers ephemeral and access tokens that fail validation.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrNotFound reports a missing account where enumeration is not a concern.
	ErrNotFound = errors.New("account not found")
	// ErrPasswordPolicy reports a password that does not meet the configured policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a password change keeps the current password.
	ErrPasswordReuse = errors.New("new password must differ from the current one")
	// ErrEmailAlreadyVerified is returned when re-requesting verification of a verified address.
	ErrEmailAlreadyVerified = errors.New("email already verified")
	// ErrRateLimited is returned when an email exceeds its token request budget.
	ErrRateLimited = errors.New("too many requests")
	// ErrInvalidInput reports a missing or malformed required field.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEngineNotReady is returned by methods on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

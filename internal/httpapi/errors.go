package httpapi

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/userauth"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps an engine error to its HTTP status and client message.
// Unknown errors become 500 with a generic message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, userauth.ErrInvalidInput), errors.Is(err, userauth.ErrPasswordPolicy),
		errors.Is(err, userauth.ErrPasswordReuse):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, userauth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, userauth.ErrRefreshTokenInvalid):
		return http.StatusUnauthorized, "Invalid refresh token"
	case errors.Is(err, userauth.ErrInvalidOrExpiredToken):
		return http.StatusUnauthorized, "Invalid or expired token"
	case errors.Is(err, userauth.ErrAccountDisabled):
		return http.StatusForbidden, "Account is disabled"
	case errors.Is(err, userauth.ErrNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, userauth.ErrAlreadyExists):
		return http.StatusConflict, "Email or username already registered"
	case errors.Is(err, userauth.ErrEmailAlreadyVerified):
		return http.StatusConflict, "Email already verified"
	case errors.Is(err, userauth.ErrAccountLocked):
		return http.StatusLocked, "Account is locked. Try again later"
	case errors.Is(err, userauth.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many requests"
	case errors.Is(err, userauth.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "Service unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// Package userauth is the authentication and token-lifecycle core of the user
// service: credential verification with brute-force lockout, HS256 access tokens,
// rotating refresh tokens, and single-use tokens for email verification and
// password reset.
//
// An [Engine] is assembled by [Builder] from a [CredentialStore], a refresh token
// store (Redis by default) and an optional [Notifier]. Engine methods are safe to
// call from multiple goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// userauth is the public surface: [Engine], [Builder], [Config] and value types.
// Token encoding lives in jwt, lockout arithmetic in lockout, refresh persistence
// in refresh, ephemeral tokens and request throttling under internal/.
//
// # Error contract
//
// Every failure a caller can act on is one of the sentinels in errors.go, compared
// with errors.Is. Storage failures are wrapped and returned as-is.
package userauth

// Package middleware guards HTTP routes with userauth access tokens.
//
// Guard wraps a net/http handler; RequireAccess and RequireRole are the gin
// equivalents. Every guard reads a Bearer token from the Authorization header,
// delegates verification to Engine.ValidateAccess and stores the claims for the
// handler. No guard parses tokens itself.
package middleware

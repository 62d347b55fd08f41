// Package httpapi is the gin JSON surface of userauthd.
//
// Routes live under /api/auth; /healthz and /metrics sit at the root. Handlers
// translate requests into Engine calls and map engine errors to status codes
// through statusFor. No authentication logic lives here.
package httpapi

// Package jwt issues and verifies the short-lived access tokens handed out by the
// authentication engine.
//
// Tokens are HS256-signed with a single shared secret and carry the subject (the
// account email), the account roles, and the issue/expiry instants. Verification
// never touches storage: a token is valid iff its signature matches the current
// secret and it has not expired.
//
// # What this package must NOT do
//
//   - Perform I/O or consult revocation state.
//   - Import userauth or any internal package.
package jwt

// Package stores holds short-lived single-use tokens for email verification and
// password reset.
//
// # Design
//
// A token is a random UUIDv4 string mapped to the email it was issued for. Each
// Kind is a separate namespace. Records are keyed by the SHA-256 of the token, so
// neither the in-memory maps nor Redis keys hold the plaintext. Consume is an
// indivisible lookup-and-delete: of any number of concurrent Consume calls for one
// token, exactly one succeeds.
//
// Expiry is decided against the caller-supplied now; a record at or past its
// expiry is indistinguishable from one that never existed.
package stores

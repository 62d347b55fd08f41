// Package refresh owns long-lived opaque refresh tokens: generation, hashing and
// the persistent Store abstraction with its Redis implementation.
//
// # Token format
//
// 32 bytes from crypto/rand, base64url without padding. Stores never see the
// plaintext beyond the call boundary; records are keyed by HashToken(token).
//
// # Rotation
//
// Store.Rotate revokes every token of a user and saves the new one as a single
// indivisible step, so a concurrent refresh can never observe a user with zero
// usable tokens between the two halves, nor keep a token issued before a login.
//
// # Retention
//
// Revoked and expired records stay readable (FindByToken reports them, and the
// engine rejects them) until a Sweeper deletes them.
package refresh

// Package rate throttles outbound token requests (verification resend, password
// reset) per email address.
//
// # Window semantics
//
// Fixed windows opened by the first hit. The Redis backend runs INCR and the
// first-hit PEXPIRE in one script; the memory backend keeps a map of windows and
// prunes expired ones as it goes. Keys are <prefix>:<action>:<sha256(email)> so
// addresses never appear in Redis.
package rate

// Package lockout holds the brute-force lockout policy applied to password logins.
//
// The policy is a set of pure functions over a State value. It performs no I/O and
// never reads the wall clock: callers pass the instant to evaluate against, which
// keeps the policy deterministic under test and lets storage layers apply the same
// rules atomically.
package lockout

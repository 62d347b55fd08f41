// Package password hashes and verifies account passwords.
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verify also accepts bcrypt hashes ($2a$, $2b$, $2y$) written by earlier
// deployments of the user service. NeedsUpgrade reports true for those and for
// Argon2id hashes produced with weaker parameters, so the caller can re-hash on the
// next successful login.
//
// Password policy (minimum length, reuse) is enforced by the engine, not here.
package password

// Package password implements password hashing and verification with Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Verifier] additionally accepts bcrypt hashes ($2a$, $2b$, $2y$) imported
// from older deployments. [Verifier.NeedsUpgrade] reports them, and argon2id
// hashes made with weaker parameters, so the caller can rehash on the next
// successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy is
// enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other teamgate package.
//   - Log plaintext passwords.
package password

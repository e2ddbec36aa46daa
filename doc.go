// Package teamgate is the authentication and session-issuance core of a
// role-based project collaboration backend.
//
// Login is two-step: a password check mails a six-digit passcode, and
// verifying the passcode issues a one-hour signed session token. Password
// reset is out-of-band through a mailed single-use link. Both flows share
// one expiring-secret abstraction ([secret.Store]) and one resend
// cooldown ([RateGuard]).
//
// # Architecture boundaries
//
// teamgate is the public surface. It exposes [Engine], [Builder], [Config]
// and value types. Storage adapters live in secret, accounts and session;
// transport lives in internal/httpapi and cmd/teamgate.
//
// # What this package must NOT do
//
//   - Read the wall clock or a random source directly; both are injected.
//   - Keep cross-request state in memory. Atomicity lives in the stores.
//   - Import any sub-package that re-imports teamgate (no import cycles).
package teamgate

// Package limiters holds the resend cooldown arithmetic used by the rate
// guard.
//
// A cooldown is derived from the creation time of the live secret for an
// (account, purpose) pair; no separate counter is stored.
//
// # What this package must NOT do
//
//   - Import teamgate or any storage package.
//   - Write audit entries (the caller decides consequences).
package limiters

// Package mail delivers the one-time passcode and password reset messages.
//
// [Templates] renders the text and HTML bodies, [SMTPMailer] sends them over
// SMTP with bounded retries for transient failures and [LogMailer] writes
// them to a structured logger for local development.
//
// # What this package must NOT do
//
//   - Import teamgate (the root package aliases [Message]).
//   - Decide whether a message should be sent.
package mail

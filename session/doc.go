// Package session keeps the optional Redis revocation list for session
// tokens.
//
// Session tokens are stateless and normally live until their expiry. When
// revocation is enabled, logout records the token id here and a password
// reset records an account-wide cutoff; validation consults both.
//
// # What this package must NOT do
//
//   - Parse or sign tokens (that is the jwt package).
//   - Import the root teamgate package.
package session

// Package internal contains helpers that are private to teamgate, mainly
// secure generation of passcodes and reset tokens.
//
// # Sub-packages
//
//   - audit: async audit dispatch (Dispatcher + Sink implementations)
//   - bootstrap: process configuration and runtime wiring
//   - httpapi: chi HTTP adapter over the Engine
//   - limiters: resend cooldown arithmetic
//   - logging: slog setup with trace correlation
//   - migrations: embedded goose schema
//   - pgdb: pgx pool helpers
//   - rate: Redis fixed-window throttle
//
// # What this package must NOT do
//
//   - Export types that appear in the public teamgate API.
//   - Be imported by any package outside the teamgate module.
package internal

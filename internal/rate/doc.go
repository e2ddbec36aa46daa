// Package rate provides the Redis-backed fixed-window counter behind the
// per-address login throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR + EXPIRE on the first hit of a window. Every
// request counts, successful or not. Key prefix:
//   - tg:lip: login per source address
//
// # What this package must NOT do
//
//   - Decide the OTP resend cooldown (that lives in internal/limiters).
//   - Be imported outside the teamgate module.
package rate

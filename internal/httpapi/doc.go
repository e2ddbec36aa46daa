// Package httpapi exposes the authentication flows over JSON/HTTP.
//
// Routes live under /api/auth. Account administration requires an
// administrator session; logout requires any valid session.
//
//	POST /api/auth/login                   400 invalid credentials, 429 cooldown or throttle
//	POST /api/auth/verify-otp              400 invalid or expired OTP
//	POST /api/auth/request-password-reset  429 cooldown
//	POST /api/auth/reset-password          400 invalid or expired token, 400 password policy
//	POST /api/auth/register                admin, 409 duplicate email
//	GET  /api/auth/users                   admin
//	PUT  /api/auth/users/{userId}          admin, 404 unknown account
//	POST /api/auth/logout                  501 when revocation is disabled
//
// Infrastructure faults map to 500 with a generic message.
package httpapi

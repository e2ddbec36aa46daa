// Package middleware adapts teamgate session validation to net/http.
//
// [Guard] reads the bearer token from the Authorization header, validates
// it through the Engine and stores the resulting session in the request
// context. [RequireRoles] must run after Guard and admits only sessions
// carrying one of the given roles.
//
// Status codes:
//
//	missing or malformed Authorization header   403
//	invalid, expired or revoked token            401
//	role not permitted                           403
//	revocation store unavailable                 500
package middleware

// Package jwt issues and verifies the signed session tokens handed out after
// a completed login. A token carries the account id, the account role and
// an expiry one TTL after issuance; nothing about it is stored server-side.
package jwt

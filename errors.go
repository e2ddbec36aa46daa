package teamgate

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited is matched by every *RateLimitedError.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidOrExpiredOTP covers a missing, mismatched, expired or already used passcode.
	ErrInvalidOrExpiredOTP = errors.New("invalid or expired OTP")
	// ErrInvalidOrExpiredToken covers a missing, expired or already used reset token.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrDeliveryFailure means the mail could not be handed to the relay.
	ErrDeliveryFailure = errors.New("delivery failure")
	// ErrStoreUnavailable wraps secret store and account directory faults.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrAccountExists is returned when registering an email that is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound is returned by directories and account administration for an unknown id or email.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidRole rejects a role outside administrator, lead and contributor.
	ErrInvalidRole = errors.New("invalid role")
	// ErrPasswordPolicy rejects a new password that does not meet Config.Password.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrInvalidSession covers a malformed, expired, revoked or forged session token.
	ErrInvalidSession = errors.New("invalid session")
	// ErrRevocationDisabled is returned by Logout when Config.Session.EnableRevocation is off.
	ErrRevocationDisabled = errors.New("session revocation disabled")
	// ErrLoginThrottled is matched by every *ThrottledError.
	ErrLoginThrottled = errors.New("too many login attempts")
	// ErrEngineNotReady is returned by a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidAccount rejects registration or profile input with an empty name or malformed email.
	ErrInvalidAccount = errors.New("invalid account input")
)

// RateLimitedError is returned when a secret was issued too recently.
// RetryAfterSeconds is always within (0, cooldown].
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %d seconds", e.RetryAfterSeconds)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter extracts the wait from a rate limit error. ok is false for
// any other error.
func RetryAfter(err error) (seconds int, ok bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfterSeconds, true
	}
	return 0, false
}

// ThrottledError is returned when a source address exceeded the login
// request budget.
type ThrottledError struct {
	RetryAfterSeconds int
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("too many login attempts: retry after %d seconds", e.RetryAfterSeconds)
}

func (e *ThrottledError) Is(target error) bool {
	return target == ErrLoginThrottled
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MrEthical07/teamgate"
)

const maxBodyBytes = 1 << 20

const (
	msgServerError         = "Server error"
	msgInvalidCredentials  = "Invalid credentials"
	msgInvalidOTP          = "Invalid or expired OTP"
	msgInvalidResetToken   = "Invalid or expired reset token"
	msgPasswordPolicy      = "Password does not meet the password policy"
	msgInvalidAccount      = "Invalid name or email"
	msgInvalidRole         = "Invalid role"
	msgUserExists          = "User already exists"
	msgUserNotFound        = "User not found"
	msgInvalidSession      = "invalid or expired token"
	msgRevocationDisabled  = "Logout is not available: session revocation is disabled"
	msgLoginThrottled      = "Too many login attempts. Please try again later."
	msgMalformedBody       = "Malformed request body"
	msgServiceNotAvailable = "Service unavailable"
)

// account is the public view of an account. The password hash never
// leaves the server.
type account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func accountView(a teamgate.Account) account {
	return account{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Role:      string(a.Role),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

// cooldownSubject names what the caller is waiting for in a cooldown
// message.
type cooldownSubject string

const (
	subjectOTP       cooldownSubject = "a new OTP"
	subjectResetLink cooldownSubject = "a new reset link"
)

// mapError translates an Engine error to a status code and a client
// message.
func mapError(err error, subject cooldownSubject) (int, string) {
	var limited *teamgate.RateLimitedError
	var throttled *teamgate.ThrottledError
	switch {
	case errors.As(err, &limited):
		return http.StatusTooManyRequests, fmt.Sprintf("Please wait %d seconds before requesting %s.", limited.RetryAfterSeconds, subject)
	case errors.As(err, &throttled):
		return http.StatusTooManyRequests, msgLoginThrottled
	case errors.Is(err, teamgate.ErrInvalidCredentials):
		return http.StatusBadRequest, msgInvalidCredentials
	case errors.Is(err, teamgate.ErrInvalidOrExpiredOTP):
		return http.StatusBadRequest, msgInvalidOTP
	case errors.Is(err, teamgate.ErrInvalidOrExpiredToken):
		return http.StatusBadRequest, msgInvalidResetToken
	case errors.Is(err, teamgate.ErrPasswordPolicy):
		return http.StatusBadRequest, msgPasswordPolicy
	case errors.Is(err, teamgate.ErrInvalidAccount):
		return http.StatusBadRequest, msgInvalidAccount
	case errors.Is(err, teamgate.ErrInvalidRole):
		return http.StatusBadRequest, msgInvalidRole
	case errors.Is(err, teamgate.ErrAccountExists):
		return http.StatusConflict, msgUserExists
	case errors.Is(err, teamgate.ErrAccountNotFound):
		return http.StatusNotFound, msgUserNotFound
	case errors.Is(err, teamgate.ErrInvalidSession):
		return http.StatusUnauthorized, msgInvalidSession
	case errors.Is(err, teamgate.ErrRevocationDisabled):
		return http.StatusNotImplemented, msgRevocationDisabled
	default:
		return http.StatusInternalServerError, msgServerError
	}
}

// fail writes the mapped error and logs it. Rate limit responses carry a
// Retry-After header.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, operation string, err error, subject cooldownSubject) {
	status, message := mapError(err, subject)

	var limited *teamgate.RateLimitedError
	var throttled *teamgate.ThrottledError
	switch {
	case errors.As(err, &limited):
		w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds))
	case errors.As(err, &throttled):
		w.Header().Set("Retry-After", strconv.Itoa(throttled.RetryAfterSeconds))
	}

	fields := []any{
		"operation", operation,
		"status_code", status,
		"request_id", chimw.GetReqID(ctx),
		"error", err.Error(),
	}
	if status >= 500 {
		h.logger.ErrorContext(ctx, "http operation failed", fields...)
	} else {
		h.logger.WarnContext(ctx, "http operation failed", fields...)
	}
	writeMessage(w, status, message)
}

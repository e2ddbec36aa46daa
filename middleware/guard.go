package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/teamgate"
)

// SessionValidator is the part of *teamgate.Engine the guard needs.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*teamgate.SessionInfo, error)
}

type sessionContextKey struct{}

// SessionFromContext returns the session stored by Guard.
func SessionFromContext(ctx context.Context) (*teamgate.SessionInfo, bool) {
	info, ok := ctx.Value(sessionContextKey{}).(*teamgate.SessionInfo)
	return info, ok && info != nil
}

// WithSession stores info in ctx the way Guard does.
func WithSession(ctx context.Context, info *teamgate.SessionInfo) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, info)
}

// Guard rejects requests without a valid bearer session token.
func Guard(validator SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validator == nil {
				writeError(w, http.StatusInternalServerError, "authentication unavailable")
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusForbidden, "access denied: no token provided")
				return
			}

			info, err := validator.ValidateSession(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, teamgate.ErrInvalidSession):
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			default:
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), info)))
		})
	}
}

// RequireRoles admits sessions carrying one of roles. It expects Guard to
// have run first; a request without a session is refused.
func RequireRoles(roles ...teamgate.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := SessionFromContext(r.Context())
			if !ok || !info.HasRole(roles...) {
				writeError(w, http.StatusForbidden, "access denied: insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}

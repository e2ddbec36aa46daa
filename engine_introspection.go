package teamgate

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/MrEthical07/teamgate/jwt"
)

// ValidateSession verifies a session token. Any malformed, tampered,
// expired or revoked token returns ErrInvalidSession.
func (e *Engine) ValidateSession(ctx context.Context, token string) (*SessionInfo, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.sessions.Verify(token, e.clock.Now())
	if err != nil {
		e.metricInc(MetricSessionRejected)
		return nil, ErrInvalidSession
	}
	info := sessionInfo(claims)

	if e.revocations != nil {
		revoked, err := e.revocations.IsRevoked(ctx, info.TokenID, info.AccountID, info.IssuedAt)
		if err != nil {
			return nil, e.storeFailure(ctx, "validate_session.revocation", err)
		}
		if revoked {
			e.metricInc(MetricSessionRejected)
			return nil, ErrInvalidSession
		}
	}

	return info, nil
}

// Logout revokes the session token until its natural expiry. It requires
// Session.EnableRevocation; otherwise ErrRevocationDisabled is returned
// and the token stays valid until it expires.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if e.revocations == nil {
		return ErrRevocationDisabled
	}

	now := e.clock.Now()
	claims, err := e.sessions.Verify(token, now)
	if err != nil {
		return ErrInvalidSession
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return ErrInvalidSession
	}

	if err := e.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time, now); err != nil {
		return e.storeFailure(ctx, "logout.revoke", err)
	}

	e.metricInc(MetricLogout)
	e.logger.InfoContext(ctx, "session revoked", slog.String("account_id", claims.AccountID()))
	return nil
}

// HasRole reports whether the session carries one of roles.
func (s *SessionInfo) HasRole(roles ...Role) bool {
	return s != nil && slices.Contains(roles, s.Role)
}

func sessionInfo(c *jwt.Claims) *SessionInfo {
	info := &SessionInfo{
		AccountID: c.AccountID(),
		Role:      Role(c.Role),
		TokenID:   c.ID,
	}
	if c.IssuedAt != nil {
		info.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		info.ExpiresAt = c.ExpiresAt.Time
	}
	return info
}

// IsInvalidSession reports whether err means the caller must authenticate
// again.
func IsInvalidSession(err error) bool {
	return errors.Is(err, ErrInvalidSession)
}

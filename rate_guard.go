package teamgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/teamgate/internal/limiters"
	"github.com/MrEthical07/teamgate/secret"
	"github.com/oklog/ulid/v2"
)

// RateDecision is the outcome of a RateGuard check.
type RateDecision struct {
	Allowed           bool
	RetryAfterSeconds int
}

// RateGuard refuses a new secret for an (account, purpose) pair while the
// live one is younger than the cooldown. The decision is derived from the
// secret store alone; the audit log is written but never read.
type RateGuard struct {
	secrets  secret.Store
	cooldown limiters.Cooldown
	audit    AuditSink
}

// NewRateGuard returns a RateGuard over store. sink may be nil.
func NewRateGuard(store secret.Store, cooldown time.Duration, sink AuditSink) (*RateGuard, error) {
	if store == nil {
		return nil, errors.New("secret store required")
	}
	c, err := limiters.NewCooldown(cooldown)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	return &RateGuard{secrets: store, cooldown: c, audit: sink}, nil
}

// CheckAndRecord decides whether a secret of purpose may be issued for
// accountID at now. A denial appends a blocked audit entry carrying
// sourceAddress. Store failures are returned wrapped in
// ErrStoreUnavailable.
func (g *RateGuard) CheckAndRecord(
	ctx context.Context,
	accountID string,
	purpose secret.Purpose,
	now time.Time,
	sourceAddress string,
) (RateDecision, error) {
	live, ok, err := g.secrets.Find(ctx, accountID, purpose)
	if err != nil {
		return RateDecision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return RateDecision{Allowed: true}, nil
	}

	retryAfter, blocked := g.cooldown.RetryAfter(live.CreatedAt, now)
	if !blocked {
		return RateDecision{Allowed: true}, nil
	}

	g.audit.Emit(ctx, newAuditEntry(accountID, purpose, sourceAddress, OutcomeBlocked, now))
	return RateDecision{Allowed: false, RetryAfterSeconds: retryAfter}, nil
}

// Cooldown returns the configured spacing between issuances.
func (g *RateGuard) Cooldown() time.Duration {
	return g.cooldown.Window()
}

func newAuditEntry(accountID string, purpose secret.Purpose, sourceAddress string, outcome Outcome, now time.Time) AuditEntry {
	return AuditEntry{
		ID:            ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		AccountID:     accountID,
		Purpose:       purpose,
		SourceAddress: sourceAddress,
		Outcome:       outcome,
		Timestamp:     now.UTC(),
	}
}

// Package secret stores short-lived single-use secrets (login passcodes and
// password-reset tokens) keyed by account and purpose.
//
// Stores never enforce expiry on lookup. Callers compare ExpiresAt with
// their own clock so that the decision is made against one notion of "now".
package secret

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// Purpose names the flow a secret belongs to.
type Purpose string

const (
	// PurposeMFA is the emailed one-time passcode that completes a login.
	PurposeMFA Purpose = "mfa"
	// PurposePasswordReset is the emailed password-reset token.
	PurposePasswordReset Purpose = "password-reset"
)

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeMFA, PurposePasswordReset:
		return true
	default:
		return false
	}
}

var (
	// ErrBackendUnavailable wraps every failure of the backing store.
	ErrBackendUnavailable = errors.New("secret backend unavailable")
	// ErrInvalidPurpose is returned for an unknown purpose.
	ErrInvalidPurpose = errors.New("invalid secret purpose")
)

// Secret is one issued secret. Value is populated only on the record
// returned by Issue; stores persist ValueHash alone.
type Secret struct {
	ID        string
	AccountID string
	Purpose   Purpose
	Value     string
	ValueHash [32]byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the secret is no longer usable at now.
func (s Secret) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Matches compares value against the stored hash in constant time.
func (s Secret) Matches(value string) bool {
	h := HashValue(value)
	return subtle.ConstantTimeCompare(h[:], s.ValueHash[:]) == 1
}

// HashValue returns the digest under which a secret value is persisted.
func HashValue(value string) [32]byte {
	return sha256.Sum256([]byte(value))
}

// Store is the persistence contract for secrets.
//
// Issue must invalidate any live secret of the same purpose for the account
// and insert the new one as a single atomic unit in the backing store.
// Consume reports whether this call removed the secret, so concurrent
// callers can claim a secret exactly once.
type Store interface {
	Issue(ctx context.Context, accountID string, purpose Purpose, value string, now time.Time, ttl time.Duration) (Secret, error)
	Find(ctx context.Context, accountID string, purpose Purpose) (Secret, bool, error)
	FindByValue(ctx context.Context, purpose Purpose, value string) (Secret, bool, error)
	Consume(ctx context.Context, secretID string) (bool, error)
	ConsumeAll(ctx context.Context, accountID string, purpose Purpose) error
}

func newSecret(accountID string, purpose Purpose, value string, now time.Time, ttl time.Duration) (Secret, error) {
	if !purpose.Valid() {
		return Secret{}, ErrInvalidPurpose
	}
	if accountID == "" || value == "" {
		return Secret{}, errors.New("secret requires account id and value")
	}
	if ttl <= 0 {
		return Secret{}, errors.New("secret ttl must be > 0")
	}

	id, err := ulid.New(ulid.Timestamp(now), ulid.DefaultEntropy())
	if err != nil {
		return Secret{}, err
	}

	now = now.UTC()
	return Secret{
		ID:        id.String(),
		AccountID: accountID,
		Purpose:   purpose,
		Value:     value,
		ValueHash: HashValue(value),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

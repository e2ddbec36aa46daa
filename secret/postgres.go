package secret

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/MrEthical07/teamgate/internal/pgdb"
)

// PostgresStore keeps secrets in the secrets table. The UNIQUE
// (account_id, purpose) constraint holds at most one live secret per
// account and purpose, and Issue replaces it with a single upsert.
type PostgresStore struct {
	db pgdb.DB
}

// NewPostgresStore creates a PostgresStore on db.
func NewPostgresStore(db pgdb.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Issue replaces the live secret of purpose for accountID with a new one.
func (s *PostgresStore) Issue(
	ctx context.Context,
	accountID string,
	purpose Purpose,
	value string,
	now time.Time,
	ttl time.Duration,
) (Secret, error) {
	rec, err := newSecret(accountID, purpose, value, now, ttl)
	if err != nil {
		return Secret{}, err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO secrets (id, account_id, purpose, value_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, purpose) DO UPDATE SET
			id = EXCLUDED.id,
			value_hash = EXCLUDED.value_hash,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`,
		rec.ID,
		rec.AccountID,
		string(rec.Purpose),
		rec.ValueHash[:],
		rec.CreatedAt,
		rec.ExpiresAt,
	)
	if err != nil {
		return Secret{}, backendError("SECRET_ISSUE_FAILED", "issue secret", err, "account_id", accountID)
	}
	return rec, nil
}

// Find returns the live secret of purpose for accountID, if any.
func (s *PostgresStore) Find(ctx context.Context, accountID string, purpose Purpose) (Secret, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, account_id, purpose, value_hash, created_at, expires_at
		FROM secrets
		WHERE account_id = $1 AND purpose = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, accountID, string(purpose))

	rec, err := scanSecret(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Secret{}, false, nil
	}
	if err != nil {
		return Secret{}, false, backendError("SECRET_FIND_FAILED", "find secret", err, "account_id", accountID)
	}
	return rec, true, nil
}

// FindByValue returns the secret of purpose whose value is value, if any.
func (s *PostgresStore) FindByValue(ctx context.Context, purpose Purpose, value string) (Secret, bool, error) {
	if value == "" {
		return Secret{}, false, nil
	}
	hash := HashValue(value)

	row := s.db.QueryRow(ctx, `
		SELECT id, account_id, purpose, value_hash, created_at, expires_at
		FROM secrets
		WHERE purpose = $1 AND value_hash = $2
	`, string(purpose), hash[:])

	rec, err := scanSecret(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Secret{}, false, nil
	}
	if err != nil {
		return Secret{}, false, backendError("SECRET_FIND_FAILED", "find secret by value", err)
	}
	if !rec.Matches(value) {
		return Secret{}, false, nil
	}
	return rec, true, nil
}

// Consume deletes the secret with secretID and reports whether a row went.
func (s *PostgresStore) Consume(ctx context.Context, secretID string) (bool, error) {
	if secretID == "" {
		return false, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM secrets WHERE id = $1`, secretID)
	if err != nil {
		return false, backendError("SECRET_CONSUME_FAILED", "consume secret", err, "secret_id", secretID)
	}
	return tag.RowsAffected() == 1, nil
}

// ConsumeAll deletes every secret of purpose for accountID.
func (s *PostgresStore) ConsumeAll(ctx context.Context, accountID string, purpose Purpose) error {
	_, err := s.db.Exec(ctx, `DELETE FROM secrets WHERE account_id = $1 AND purpose = $2`, accountID, string(purpose))
	if err != nil {
		return backendError("SECRET_CONSUME_FAILED", "consume all secrets", err, "account_id", accountID)
	}
	return nil
}

// PurgeExpired removes rows that expired before cutoff and returns how many
// were deleted. It only reclaims storage; lookups already ignore expiry.
func (s *PostgresStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM secrets WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, backendError("SECRET_PURGE_FAILED", "purge expired secrets", err)
	}
	return tag.RowsAffected(), nil
}

func scanSecret(row pgx.Row) (Secret, error) {
	var (
		rec     Secret
		purpose string
		hash    []byte
	)
	if err := row.Scan(&rec.ID, &rec.AccountID, &purpose, &hash, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
		return Secret{}, err
	}
	if len(hash) != len(rec.ValueHash) {
		return Secret{}, errCorruptRecord
	}
	copy(rec.ValueHash[:], hash)
	rec.Purpose = Purpose(purpose)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	return rec, nil
}

// backendError tags a driver failure with an error code while keeping
// ErrBackendUnavailable in the chain.
func backendError(code, operation string, err error, kv ...any) error {
	return oops.Code(code).
		With("operation", operation).
		With(kv...).
		Wrap(fmt.Errorf("%w: %w", ErrBackendUnavailable, err))
}

package secret

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// DefaultRetention is how long a record is kept past its expiry before
// storage cleanup may remove it.
const DefaultRetention = 10 * time.Minute

const (
	defaultKeyPrefix = "tg:sec"
	maxTxRetries     = 32
	txRetryBase      = time.Millisecond
	txRetryCap       = 50 * time.Millisecond
)

// RedisStore keeps secrets in Redis.
//
// Layout, all keys sharing the secret's lifetime plus the retention grace:
//
//	<prefix>:s:<id>                  encoded record
//	<prefix>:a:<purpose>:<account>   id of the live secret
//	<prefix>:v:<purpose>:<sha256>    id for lookup by value
//
// Replacement and consumption run as WATCH/MULTI transactions so the
// invalidate-then-insert of Issue is atomic across processes.
type RedisStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// RedisOption customizes a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRetention sets how long a record outlives its expiry before Redis
// evicts it. Eviction is storage cleanup only; expiry is decided by callers.
func WithRetention(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// NewRedisStore creates a RedisStore on the given client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		redis:     client,
		prefix:    defaultKeyPrefix,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) recordKey(id string) string {
	return s.prefix + ":s:" + id
}

func (s *RedisStore) accountKey(accountID string, purpose Purpose) string {
	return s.prefix + ":a:" + string(purpose) + ":" + accountID
}

func (s *RedisStore) valueKey(purpose Purpose, hash [32]byte) string {
	return s.prefix + ":v:" + string(purpose) + ":" + hex.EncodeToString(hash[:])
}

// Issue replaces the live secret of purpose for accountID with a new one.
func (s *RedisStore) Issue(
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
	encoded, err := encodeRecord(rec)
	if err != nil {
		return Secret{}, err
	}

	keyTTL := ttl + s.retention
	aKey := s.accountKey(accountID, purpose)

	err = s.transact(ctx, "issue", aKey, func() error {
		return s.redis.Watch(ctx, func(tx *redis.Tx) error {
			stale, err := s.loadIndexed(ctx, tx, aKey)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if stale != nil {
					pipe.Del(ctx, s.recordKey(stale.ID), s.valueKey(stale.Purpose, stale.ValueHash))
				}
				pipe.Set(ctx, s.recordKey(rec.ID), encoded, keyTTL)
				pipe.Set(ctx, aKey, rec.ID, keyTTL)
				pipe.Set(ctx, s.valueKey(purpose, rec.ValueHash), rec.ID, keyTTL)
				return nil
			})
			return err
		}, aKey)
	})
	if err != nil {
		return Secret{}, err
	}
	return rec, nil
}

// Find returns the live secret of purpose for accountID, if any.
func (s *RedisStore) Find(ctx context.Context, accountID string, purpose Purpose) (Secret, bool, error) {
	rec, err := s.loadIndexed(ctx, s.redis, s.accountKey(accountID, purpose))
	if err != nil {
		return Secret{}, false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if rec == nil || rec.AccountID != accountID || rec.Purpose != purpose {
		return Secret{}, false, nil
	}
	return *rec, true, nil
}

// FindByValue returns the secret of purpose whose value is value, if any.
func (s *RedisStore) FindByValue(ctx context.Context, purpose Purpose, value string) (Secret, bool, error) {
	if value == "" {
		return Secret{}, false, nil
	}
	rec, err := s.loadIndexed(ctx, s.redis, s.valueKey(purpose, HashValue(value)))
	if err != nil {
		return Secret{}, false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if rec == nil || rec.Purpose != purpose || !rec.Matches(value) {
		return Secret{}, false, nil
	}
	return *rec, true, nil
}

// Consume deletes the secret with secretID. It reports false when the
// secret was already gone, including when a concurrent caller removed it.
func (s *RedisStore) Consume(ctx context.Context, secretID string) (bool, error) {
	if secretID == "" {
		return false, nil
	}
	key := s.recordKey(secretID)

	removed := false
	err := s.transact(ctx, "consume", key, func() error {
		removed = false
		return s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}

			rec, err := decodeRecord(data)
			if err != nil {
				// Unreadable record: drop it without touching the indexes.
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err == nil {
					removed = true
				}
				return err
			}

			aKey := s.accountKey(rec.AccountID, rec.Purpose)
			if err := tx.Watch(ctx, aKey).Err(); err != nil {
				return err
			}
			current, err := tx.Get(ctx, aKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key, s.valueKey(rec.Purpose, rec.ValueHash))
				if current == rec.ID {
					pipe.Del(ctx, aKey)
				}
				return nil
			})
			if err != nil {
				return err
			}
			removed = true
			return nil
		}, key)
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// ConsumeAll deletes every secret of purpose for accountID.
func (s *RedisStore) ConsumeAll(ctx context.Context, accountID string, purpose Purpose) error {
	aKey := s.accountKey(accountID, purpose)

	return s.transact(ctx, "consume", aKey, func() error {
		return s.redis.Watch(ctx, func(tx *redis.Tx) error {
			rec, err := s.loadIndexed(ctx, tx, aKey)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, aKey)
				if rec != nil {
					pipe.Del(ctx, s.recordKey(rec.ID), s.valueKey(rec.Purpose, rec.ValueHash))
				}
				return nil
			})
			return err
		}, aKey)
	})
}

// transact runs a WATCH transaction until it commits. When another writer
// changes a watched key the attempt is retried after a jittered, capped
// exponential pause, so concurrent writers on one key are serialized.
func (s *RedisStore) transact(ctx context.Context, op, key string, attempt func() error) error {
	backoff := retry.WithMaxRetries(maxTxRetries,
		retry.WithJitterPercent(50,
			retry.WithCappedDuration(txRetryCap, retry.NewExponential(txRetryBase))))

	err := retry.Do(ctx, backoff, func(context.Context) error {
		err := attempt()
		if errors.Is(err, redis.TxFailedErr) {
			return retry.RetryableError(err)
		}
		return err
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: %s contention on %s", ErrBackendUnavailable, op, key)
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}

// loadIndexed follows an index key to its record. A dangling index or a
// missing record yields nil without error.
func (s *RedisStore) loadIndexed(ctx context.Context, cmd redis.Cmdable, indexKey string) (*Secret, error) {
	id, err := cmd.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	data, err := cmd.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec, err := decodeRecord(data)
	if err != nil {
		// Unreadable records are treated as absent and age out with their TTL.
		return nil, nil
	}
	return &rec, nil
}

package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every Redis failure of the revocation list.
var ErrRedisUnavailable = errors.New("revocation redis unavailable")

const defaultPrefix = "tg:rev"

// raiseCutoffScript stores ARGV[1] in KEYS[1] only when it is newer than the
// value already there, so concurrent account-wide revocations never move
// the cutoff backwards.
const raiseCutoffScript = `
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local next = tonumber(ARGV[1])
if next > current then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
  return 1
end
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 0
`

var raiseCutoffLua = redis.NewScript(raiseCutoffScript)

// RevocationList records session tokens that must be refused before their
// natural expiry. Entries expire with the tokens they cover.
type RevocationList struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRevocationList creates a RevocationList. An empty prefix selects the
// default namespace.
func NewRevocationList(client redis.UniversalClient, prefix string) *RevocationList {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RevocationList{redis: client, prefix: prefix}
}

func (l *RevocationList) tokenKey(tokenID string) string {
	return l.prefix + ":t:" + tokenID
}

func (l *RevocationList) accountKey(accountID string) string {
	return l.prefix + ":a:" + accountID
}

// Revoke refuses the token with tokenID until expiresAt. Tokens already
// expired at now need no entry.
func (l *RevocationList) Revoke(ctx context.Context, tokenID string, expiresAt, now time.Time) error {
	if tokenID == "" {
		return errors.New("token id required")
	}
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}
	if err := l.redis.Set(ctx, l.tokenKey(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeAccount refuses every token of accountID issued at or before
// cutoff. The entry is kept for maxTokenAge, the longest a token can live.
func (l *RevocationList) RevokeAccount(ctx context.Context, accountID string, cutoff time.Time, maxTokenAge time.Duration) error {
	if accountID == "" {
		return errors.New("account id required")
	}
	if maxTokenAge <= 0 {
		return errors.New("max token age must be > 0")
	}
	err := raiseCutoffLua.Run(
		ctx,
		l.redis,
		[]string{l.accountKey(accountID)},
		strconv.FormatInt(cutoff.Unix(), 10),
		strconv.FormatInt(maxTokenAge.Milliseconds(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the token identified by tokenID, belonging to
// accountID and issued at issuedAt, has been revoked.
func (l *RevocationList) IsRevoked(ctx context.Context, tokenID, accountID string, issuedAt time.Time) (bool, error) {
	pipe := l.redis.Pipeline()
	exists := pipe.Exists(ctx, l.tokenKey(tokenID))
	cutoff := pipe.Get(ctx, l.accountKey(accountID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if exists.Val() > 0 {
		return true, nil
	}

	raw, err := cutoff.Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return issuedAt.Unix() <= raw, nil
}

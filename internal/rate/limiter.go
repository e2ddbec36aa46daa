package rate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "tg:lip"

// Config holds limiter tuning parameters.
type Config struct {
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
}

// Decision is the outcome of one throttle check.
type Decision struct {
	Allowed           bool
	Remaining         int
	RetryAfterSeconds int
}

// Limiter counts requests per key inside a fixed window.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) (*Limiter, error) {
	if redisClient == nil {
		return nil, errors.New("redis client is nil")
	}
	if cfg.MaxRequests <= 0 {
		return nil, errors.New("max requests must be > 0")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("window must be > 0")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultPrefix
	}
	return &Limiter{redis: redisClient, config: cfg}, nil
}

// Allow records one request for key and reports whether it fits the
// window. An empty key is always allowed.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{Allowed: true, Remaining: l.config.MaxRequests}, nil
	}

	redisKey := l.config.KeyPrefix + ":" + key
	count, err := l.incrementWithTTL(ctx, redisKey)
	if err != nil {
		return Decision{}, err
	}

	if count <= int64(l.config.MaxRequests) {
		return Decision{Allowed: true, Remaining: l.config.MaxRequests - int(count)}, nil
	}

	ttl, err := l.redis.PTTL(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return Decision{Allowed: false, RetryAfterSeconds: retryAfter(ttl, l.config.Window)}, nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.config.KeyPrefix+":"+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

// retryAfter converts a remaining key TTL to whole seconds. A key that
// lost its TTL reports the full window.
func retryAfter(ttl, window time.Duration) int {
	if ttl <= 0 {
		ttl = window
	}
	secs := int(math.Ceil(ttl.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

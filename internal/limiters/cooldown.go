package limiters

import (
	"errors"
	"math"
	"time"
)

// Cooldown is the minimum spacing between two issuances of the same
// secret purpose for one account.
type Cooldown struct {
	window time.Duration
}

// NewCooldown returns a Cooldown of window length.
func NewCooldown(window time.Duration) (Cooldown, error) {
	if window <= 0 {
		return Cooldown{}, errors.New("cooldown window must be > 0")
	}
	return Cooldown{window: window}, nil
}

// Window returns the configured cooldown length.
func (c Cooldown) Window() time.Duration {
	return c.window
}

// RetryAfter reports whether an issuance at now must be refused given the
// previous issuance at createdAt. When refused, the whole seconds to wait
// are returned, always in (0, window]. A createdAt in the future (clock
// skew between replicas) counts as elapsed zero.
func (c Cooldown) RetryAfter(createdAt, now time.Time) (int, bool) {
	elapsed := now.Sub(createdAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= c.window {
		return 0, false
	}

	secs := int(math.Ceil((c.window - elapsed).Seconds()))
	if secs < 1 {
		secs = 1
	}
	if max := int(math.Ceil(c.window.Seconds())); secs > max {
		secs = max
	}
	return secs, true
}

package rate

import "errors"

// ErrRedisUnavailable wraps every Redis failure of the limiter.
var ErrRedisUnavailable = errors.New("redis unavailable")

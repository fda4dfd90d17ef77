package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"
)

// DefaultMaxAttempts and DefaultBaseDelay match the spec's literal retry
// formula: attempt * base, linear rather than exponential.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Caller wraps a Pool with a bounded retry loop. Between attempts it forces
// a failover and sleeps for attempt*BaseDelay before trying again. The
// final attempt's error is returned unchanged.
type Caller struct {
	pool        *Pool
	maxAttempts int
	baseDelay   time.Duration
}

// NewCaller returns a Caller over pool. maxAttempts/baseDelay default to
// DefaultMaxAttempts/DefaultBaseDelay when non-positive.
func NewCaller(pool *Pool, maxAttempts int, baseDelay time.Duration) *Caller {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Caller{pool: pool, maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// Call retries Pool.Call up to MaxAttempts times, failing over and backing
// off linearly between attempts.
func (c *Caller) Call(ctx context.Context, method string, args []any) (json.RawMessage, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		result, err := c.pool.Call(ctx, method, args)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == c.maxAttempts {
			break
		}
		c.pool.Failover()

		delay := time.Duration(attempt) * c.baseDelay
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// IsNetworkOrTimeout classifies err as a network or timeout failure. Such
// errors additionally trigger a failover from the dispatcher's error path,
// independent of the retry loop above.
func IsNetworkOrTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

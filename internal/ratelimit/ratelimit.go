package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"semaphore/internal/platform"
	"semaphore/pkg/logging"
)

// DefaultLimit is the per-platform publish budget per window.
const DefaultLimit = 30

// DefaultWindow is the rate limit window size.
const DefaultWindow = time.Minute

// Limiter is a fixed-window publish rate limiter, counted per
// destination platform (not globally) so one busy platform cannot
// starve the others. Counters live in Redis so the budget is shared
// across service instances. A nil Redis client disables limiting.
type Limiter struct {
	rdb    goredis.UniversalClient
	limit  int
	window time.Duration
	logger logging.Logger
}

// New creates a limiter. limit <= 0 or window <= 0 fall back to the
// defaults.
func New(rdb goredis.UniversalClient, limit int, window time.Duration, logger logging.Logger) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{rdb: rdb, limit: limit, window: window, logger: logger}
}

// Allow consumes one publish slot for the platform if the current
// window has budget left. Redis being unreachable fails open.
func (l *Limiter) Allow(ctx context.Context, platformID platform.ID) bool {
	if l.rdb == nil {
		return true
	}

	windowStart := time.Now().Truncate(l.window).Unix()
	key := fmt.Sprintf("semaphore:ratelimit:%s:%d", platformID, windowStart)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		l.logger.WithError(err).WithField("platform", platformID).Warn("Rate limit check failed, allowing")
		return true
	}
	if count == 1 {
		// First hit in the window owns setting the expiry.
		if err := l.rdb.Expire(ctx, key, l.window+time.Second).Err(); err != nil {
			l.logger.WithError(err).Warn("Failed to set rate limit key expiry")
		}
	}

	return count <= int64(l.limit)
}

// Wait blocks until a slot is available or the context is done.
func (l *Limiter) Wait(ctx context.Context, platformID platform.ID) error {
	for {
		if l.Allow(ctx, platformID) {
			return nil
		}

		l.logger.WithField("platform", platformID).Debug("Rate limited, waiting for next window")
		timer := time.NewTimer(time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

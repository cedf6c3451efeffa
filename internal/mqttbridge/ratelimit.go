package mqttbridge

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// rateLimiter tracks inbound message rates and drops messages once
// the configured per-interval threshold is exceeded, guarding against
// a misbehaving BLE/Victron bridge process flooding this one.
// Directly adapted from the teacher's internal/mqtt.messageRateLimiter.
type rateLimiter struct {
	count    atomic.Int64
	dropped  atomic.Int64
	limit    int64
	interval time.Duration
	logger   *slog.Logger
}

func newRateLimiter(limit int64, interval time.Duration, logger *slog.Logger) *rateLimiter {
	return &rateLimiter{limit: limit, interval: interval, logger: logger}
}

func (r *rateLimiter) start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count := r.count.Swap(0)
			dropped := r.dropped.Swap(0)
			if dropped > 0 {
				r.logger.Warn("mqttbridge: messages dropped due to rate limit",
					"received", count, "dropped", dropped,
					"interval", r.interval.String(), "limit", r.limit)
			}
		}
	}
}

func (r *rateLimiter) allow() bool {
	n := r.count.Add(1)
	if n > r.limit {
		r.dropped.Add(1)
		return false
	}
	return true
}

package redis

import (
	"context"
	"fmt"
	"time"

	"freight-commission-ledger/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

// RateLimitStore implements ports.RateLimiter with fixed-window counters.
type RateLimitStore struct {
	client *goredis.Client
	prefix string
	now    func() time.Time
}

// NewRateLimitStore creates a new Redis-backed rate limit store.
func NewRateLimitStore(client *goredis.Client) *RateLimitStore {
	return &RateLimitStore{
		client: client,
		prefix: "fcl:ratelimit:",
		now:    time.Now,
	}
}

var _ ports.RateLimiter = (*RateLimitStore)(nil)

// Allow checks if a request is within the rate limit.
// INCR and EXPIRE run in one MULTI block on a key scoped by the window number.
func (s *RateLimitStore) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*ports.RateLimitResult, error) {
	windowSecs := int64(window.Seconds())
	if windowSecs < 1 {
		windowSecs = 1
	}
	windowID := s.now().Unix() / windowSecs
	redisKey := fmt.Sprintf("%s%s:%d", s.prefix, key, windowID)

	var incr *goredis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, time.Duration(windowSecs)*time.Second+time.Second)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit incr: %w", err)
	}

	count := incr.Val()
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return &ports.RateLimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   (windowID + 1) * windowSecs,
	}, nil
}

package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
)

// HealthCheck reports Redis healthy while it still accepts writes, so a
// failover to a read-only replica shows up as degraded.
type HealthCheck struct {
	client *goredis.Client
}

func NewHealthCheck(client *goredis.Client) *HealthCheck {
	return &HealthCheck{client: client}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	return checkWritable(ctx, h.client)
}

func (h *HealthCheck) Name() string {
	return "redis"
}

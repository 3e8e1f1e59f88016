package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SweepLock implements ports.SweepLock using Redis SET NX.
type SweepLock struct {
	client *goredis.Client
	prefix string
	owner  string
}

// NewSweepLock creates a lock whose holder identity is unique to this process.
func NewSweepLock(client *goredis.Client) *SweepLock {
	return &SweepLock{
		client: client,
		prefix: "fcl:lock:",
		owner:  uuid.NewString(),
	}
}

// TryAcquire sets the lock key if absent. Returns true if this process now holds it.
func (l *SweepLock) TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	result, err := l.client.SetArgs(ctx, l.prefix+name, l.owner, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			// Held by another replica.
			return false, nil
		}
		return false, fmt.Errorf("redis lock acquire: %w", err)
	}
	return result == "OK", nil
}

// Release drops the lock if this process still holds it.
func (l *SweepLock) Release(ctx context.Context, name string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.prefix + name}, l.owner).Err(); err != nil {
		return fmt.Errorf("redis lock release: %w", err)
	}
	return nil
}

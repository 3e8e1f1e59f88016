package redis

import (
	"context"
	"fmt"
	"time"

	"freight-commission-ledger/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	writableKey = "fcl:health"
	writableTTL = 30 * time.Second
)

// NewClient connects to Redis and fails unless the server accepts writes.
// The sweep lock, the rate limiter and the idempotency cache all write.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	if err := checkWritable(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Dur("timeout", cfg.Timeout).
		Msg("Redis connection established")

	return client, nil
}

func checkWritable(ctx context.Context, client *goredis.Client) error {
	if err := client.Set(ctx, writableKey, time.Now().UTC().Unix(), writableTTL).Err(); err != nil {
		return fmt.Errorf("redis write check: %w", err)
	}
	return nil
}

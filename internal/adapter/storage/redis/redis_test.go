package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"freight-commission-ledger/config"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	s := miniredis.RunT(t)

	cfg := config.RedisConfig{Host: s.Host(), Port: mustPort(t, s.Port()), Timeout: time.Second}
	client, err := NewClient(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	assert.True(t, s.Exists(writableKey))
	assert.Equal(t, writableTTL, s.TTL(writableKey))
}

func TestHealthCheck_RefreshesWritableKey(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	defer client.Close()
	hc := NewHealthCheck(client)

	require.NoError(t, hc.Ping(context.Background()))
	s.FastForward(20 * time.Second)
	require.NoError(t, hc.Ping(context.Background()))
	assert.Equal(t, writableTTL, s.TTL(writableKey))
	assert.Equal(t, "redis", hc.Name())

	s.SetError("READONLY You can't write against a read only replica.")
	assert.ErrorContains(t, hc.Ping(context.Background()), "redis write check")
}

func TestNewClient_Unreachable(t *testing.T) {
	s := miniredis.RunT(t)
	cfg := config.RedisConfig{Host: s.Host(), Port: mustPort(t, s.Port())}
	s.Close()

	_, err := NewClient(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func mustPort(t *testing.T, p string) int {
	t.Helper()
	n, err := strconv.Atoi(p)
	require.NoError(t, err)
	return n
}

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepLock_TryAcquire(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	ctx := context.Background()

	replicaA := NewSweepLock(client)
	replicaB := NewSweepLock(client)

	ok, err := replicaA.TryAcquire(ctx, "offer-expiry", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "first replica should acquire the lock")

	ok, err = replicaB.TryAcquire(ctx, "offer-expiry", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second replica must not acquire a held lock")
}

func TestSweepLock_ExpiresAfterTTL(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	ctx := context.Background()

	replicaA := NewSweepLock(client)
	replicaB := NewSweepLock(client)

	ok, err := replicaA.TryAcquire(ctx, "offer-expiry", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	s.FastForward(31 * time.Second)

	ok, err = replicaB.TryAcquire(ctx, "offer-expiry", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "lock should be free once its TTL passed")
}

func TestSweepLock_ReleaseOnlyByOwner(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	ctx := context.Background()

	replicaA := NewSweepLock(client)
	replicaB := NewSweepLock(client)

	ok, err := replicaA.TryAcquire(ctx, "offer-expiry", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, replicaB.Release(ctx, "offer-expiry"))
	assert.True(t, s.Exists("fcl:lock:offer-expiry"), "non-owner release must be a no-op")

	require.NoError(t, replicaA.Release(ctx, "offer-expiry"))
	assert.False(t, s.Exists("fcl:lock:offer-expiry"))
}

func TestSweepLock_DifferentNamesAreIndependent(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	lock := NewSweepLock(client)
	ctx := context.Background()

	ok1, err := lock.TryAcquire(ctx, "a", time.Minute)
	require.NoError(t, err)
	ok2, err := lock.TryAcquire(ctx, "b", time.Minute)
	require.NoError(t, err)

	assert.True(t, ok1)
	assert.True(t, ok2)
}

package rbac

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(t *testing.T) (*RedisNotifier, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisNotifier(client, nil), mr
}

func TestRedisNotifierVersion(t *testing.T) {
	notifier, mr := newTestNotifier(t)
	ctx := context.Background()

	ver, err := notifier.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	require.NoError(t, notifier.Publish(ctx, "a"))
	ver, err = notifier.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ver)

	stored, err := mr.Get(catalogVersionKey)
	require.NoError(t, err)
	assert.Equal(t, "2", stored)
}

func TestRedisNotifierDeliversBumps(t *testing.T) {
	notifier, _ := newTestNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bumps := make(chan Bump, 4)
	require.NoError(t, notifier.Listen(ctx, func(b Bump) { bumps <- b }))

	require.NoError(t, notifier.Publish(ctx, "session-a"))
	select {
	case b := <-bumps:
		assert.Equal(t, "session-a", b.Origin)
		assert.Equal(t, int64(1), b.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("bump not delivered")
	}
}

func TestNilNotifierIsNoop(t *testing.T) {
	var notifier *RedisNotifier
	ctx := context.Background()
	assert.NoError(t, notifier.Publish(ctx, "x"))
	assert.NoError(t, notifier.Listen(ctx, func(Bump) {}))
	ver, err := notifier.Version(ctx)
	assert.NoError(t, err)
	assert.Zero(t, ver)
}

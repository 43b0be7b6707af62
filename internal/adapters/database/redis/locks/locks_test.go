package locks

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-events/event-aggregator/internal/domain/common/errorz"
)

// newClient connects to EVENTS_TEST_REDIS_ADDR or skips the test.
func newClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("EVENTS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("EVENTS_TEST_REDIS_ADDR is not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestTryLockExcludesOtherHolders(t *testing.T) {
	l := NewLocker(newClient(t), 3*time.Second)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	unlock, ok, err := l.TryLock(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	unlock()
	unlock()

	unlock, ok, err = l.TryLock(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	unlock()
}

func TestLockHonoursContext(t *testing.T) {
	l := NewLocker(newClient(t), 3*time.Second)
	key := "test:" + uuid.NewString()

	unlock, err := l.Lock(context.Background(), key)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, key)
	assert.ErrorIs(t, err, errorz.ErrLockNotAcquired)
}

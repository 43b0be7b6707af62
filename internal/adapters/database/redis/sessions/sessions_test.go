package sessions

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
	"github.com/campus-events/event-aggregator/internal/domain/dto"
)

func TestStorage(t *testing.T) {
	addr := os.Getenv("EVENTS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("EVENTS_TEST_REDIS_ADDR is not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, client.Ping(context.Background()).Err())

	s := NewStorage(client, time.Minute)
	ctx := context.Background()
	session := dto.Session{Token: uuid.NewString(), UserEmail: "alice@campus.edu", UserName: "Alice"}

	require.NoError(t, s.Set(ctx, session))
	got, err := s.Get(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.UserEmail, got.UserEmail)

	require.NoError(t, s.Clear(ctx, session.Token))
	_, err = s.Get(ctx, session.Token)
	assert.ErrorIs(t, err, errorz.ErrSessionNotFound)
}

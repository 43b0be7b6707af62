package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-events/event-aggregator/internal/adapters/metrics"
	"github.com/campus-events/event-aggregator/pkg/logger"
)

func TestGoChannelBus(t *testing.T) {
	bus, err := NewGoChannel(logger.Nop(), metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)

	received := make(chan Event, 1)
	bus.Handle("test_registered", TopicRegistered, func(_ context.Context, e Event) error {
		received <- e
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = bus.Run(ctx)
	}()
	<-bus.Running()

	require.NoError(t, bus.Publish(context.Background(), TopicRegistered, Event{
		EventID:        "E1",
		RegistrationID: "R1",
		UserEmail:      "alice@campus.edu",
	}))

	select {
	case e := <-received:
		assert.Equal(t, TopicRegistered, e.Type)
		assert.Equal(t, "E1", e.EventID)
		assert.Equal(t, "alice@campus.edu", e.UserEmail)
		assert.False(t, e.OccurredAt.IsZero())
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}

	require.NoError(t, bus.Close())
}

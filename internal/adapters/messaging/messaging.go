// Package messaging carries domain events (a user registered, a
// registration was cancelled, an event was cancelled) over watermill, either
// in process or over redis streams.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	wmMiddleware "github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"

	"github.com/campus-events/event-aggregator/internal/adapters/metrics"
	"github.com/campus-events/event-aggregator/pkg/logger/types"
)

const (
	TopicRegistered     = "registration.registered"
	TopicUnregistered   = "registration.cancelled"
	TopicEventCancelled = "event.cancelled"
)

// Topics lists every topic the service publishes to.
var Topics = []string{TopicRegistered, TopicUnregistered, TopicEventCancelled}

// Event is the payload of every domain event.
type Event struct {
	Type           string    `json:"type"`
	EventID        string    `json:"event_id"`
	EventTitle     string    `json:"event_title,omitempty"`
	RegistrationID string    `json:"registration_id,omitempty"`
	UserEmail      string    `json:"user_email,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Router     *message.Router

	// shared is set when Publisher and Subscriber are the same pub/sub
	shared  bool
	logger  *types.Logger
	metrics *metrics.Metrics
}

// NewGoChannel creates an in-process bus.
func NewGoChannel(logger *types.Logger, m *metrics.Metrics) (*Bus, error) {
	wmLogger := newWatermillLogger(logger)
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, wmLogger)
	bus, err := newBus(pubSub, pubSub, wmLogger, logger, m)
	if err != nil {
		return nil, err
	}
	bus.shared = true
	return bus, nil
}

// NewRedisStream creates a bus on redis streams. Every process of the same
// consumer group sees each message once.
func NewRedisStream(client *redis.Client, consumerGroup string, logger *types.Logger, m *metrics.Metrics) (*Bus, error) {
	wmLogger := newWatermillLogger(logger)

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: client,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        client,
		ConsumerGroup: consumerGroup,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriber: %w", err)
	}

	return newBus(publisher, subscriber, wmLogger, logger, m)
}

func newBus(pub message.Publisher, sub message.Subscriber, wmLogger watermill.LoggerAdapter, logger *types.Logger, m *metrics.Metrics) (*Bus, error) {
	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}
	router.AddMiddleware(
		wmMiddleware.Recoverer,
		wmMiddleware.Retry{
			MaxRetries:      3,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2,
			Logger:          wmLogger,
		}.Middleware,
	)

	return &Bus{
		Publisher:  pub,
		Subscriber: sub,
		Router:     router,
		logger:     logger,
		metrics:    m,
	}, nil
}

// Publish sends a domain event to its topic.
func (b *Bus) Publish(ctx context.Context, topic string, event Event) error {
	if event.Type == "" {
		event.Type = topic
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err = b.Publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	b.metrics.DomainEvent(topic, "published")
	return nil
}

// Handle subscribes fn to topic. The router must be (re)started with Run
// for new handlers to receive messages.
func (b *Bus) Handle(name, topic string, fn func(ctx context.Context, event Event) error) {
	b.Router.AddNoPublisherHandler(name, topic, b.Subscriber, func(msg *message.Message) error {
		var event Event
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			// a malformed message will not get better on retry
			b.logger.Errorf("dropping malformed message %s on %s: %v", msg.UUID, topic, err)
			return nil
		}
		b.metrics.DomainEvent(topic, "consumed")
		return fn(msg.Context(), event)
	})
}

// Run blocks until ctx is done or the router fails.
func (b *Bus) Run(ctx context.Context) error {
	return b.Router.Run(ctx)
}

// Running is closed once the router handles messages.
func (b *Bus) Running() chan struct{} {
	return b.Router.Running()
}

func (b *Bus) Close() error {
	if err := b.Router.Close(); err != nil {
		return fmt.Errorf("failed to close router: %w", err)
	}
	if err := b.Publisher.Close(); err != nil {
		return fmt.Errorf("failed to close publisher: %w", err)
	}
	if !b.shared {
		if err := b.Subscriber.Close(); err != nil {
			return fmt.Errorf("failed to close subscriber: %w", err)
		}
	}
	return nil
}

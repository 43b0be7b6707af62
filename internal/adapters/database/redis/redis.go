package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campus-events/event-aggregator/internal/adapters/database/redis/locks"
	"github.com/campus-events/event-aggregator/internal/adapters/database/redis/sessions"
)

type Client struct {
	Sessions *sessions.Storage
	Locks    *locks.Locker
	// Streams carries domain events when the redis stream transport is used.
	Streams *redis.Client
}

type Options struct {
	Host       string
	Port       int
	Password   string
	SessionTTL time.Duration
	LockTTL    time.Duration
}

func New(opts Options) (*Client, error) {
	sessionStorage := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Password: opts.Password,
		DB:       0,
	})
	if err := sessionStorage.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping session storage: %w", err)
	}

	lockStorage := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Password: opts.Password,
		DB:       1,
	})
	if err := lockStorage.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping lock storage: %w", err)
	}

	streamStorage := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Password: opts.Password,
		DB:       2,
	})
	if err := streamStorage.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping stream storage: %w", err)
	}

	return &Client{
		Sessions: sessions.NewStorage(sessionStorage, opts.SessionTTL),
		Locks:    locks.NewLocker(lockStorage, opts.LockTTL),
		Streams:  streamStorage,
	}, nil
}

package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campus-events/event-aggregator/internal/domain/common/errorz"
	"github.com/campus-events/event-aggregator/internal/domain/dto"
)

const keyPrefix = "session:"

type Storage struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStorage(client *redis.Client, ttl time.Duration) *Storage {
	return &Storage{
		redis: client,
		ttl:   ttl,
	}
}

func (s *Storage) Get(ctx context.Context, token string) (dto.Session, error) {
	sessionBytes, err := s.redis.Get(ctx, keyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return dto.Session{}, errorz.ErrSessionNotFound
	}
	if err != nil {
		return dto.Session{}, err
	}

	var session dto.Session
	if err = json.Unmarshal(sessionBytes, &session); err != nil {
		return dto.Session{}, err
	}
	return session, nil
}

// Set stores the session and restarts its expiration.
func (s *Storage) Set(ctx context.Context, session dto.Session) error {
	sessionBytes, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, keyPrefix+session.Token, sessionBytes, s.ttl).Err()
}

func (s *Storage) Clear(ctx context.Context, token string) error {
	return s.redis.Del(ctx, keyPrefix+token).Err()
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/campus-events/event-aggregator/internal/domain/common/errorz"
	"github.com/campus-events/event-aggregator/internal/domain/dto"
)

type sessionEntry struct {
	session   dto.Session
	expiresAt time.Time
}

// SessionStorage keeps sessions in process memory with the same expiry
// rules as the redis storage.
type SessionStorage struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]sessionEntry
	now      func() time.Time
}

func NewSessionStorage(ttl time.Duration) *SessionStorage {
	return &SessionStorage{
		ttl:      ttl,
		sessions: make(map[string]sessionEntry),
		now:      time.Now,
	}
}

func (s *SessionStorage) Get(_ context.Context, token string) (dto.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[token]
	if !ok {
		return dto.Session{}, errorz.ErrSessionNotFound
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		delete(s.sessions, token)
		return dto.Session{}, errorz.ErrSessionNotFound
	}
	return e.session, nil
}

func (s *SessionStorage) Set(_ context.Context, session dto.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := sessionEntry{session: session}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.sessions[session.Token] = e
	return nil
}

func (s *SessionStorage) Clear(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/campus-events/event-aggregator/internal/domain/common/errorz"
)

// Locker is a keyed mutex for a single process.
type Locker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]chan struct{})}
}

func (l *Locker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	return ch
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		return release(ch), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", errorz.ErrLockNotAcquired, key, ctx.Err())
	}
}

func (l *Locker) TryLock(_ context.Context, key string) (func(), bool, error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		return release(ch), true, nil
	default:
		return nil, false, nil
	}
}

func release(ch chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}
}

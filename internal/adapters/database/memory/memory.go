// Package memory is an in-process record store.
package memory

import (
	"context"
	"sync"

	"github.com/campus-events/event-aggregator/internal/adapters/database/tables"
)

type Store struct {
	mu     sync.RWMutex
	tables map[string][]tables.Row
}

func New() *Store {
	return &Store{tables: make(map[string][]tables.Row)}
}

func (s *Store) ReadTable(ctx context.Context, name string) ([]tables.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.tables[name]
	if !ok {
		return nil, tables.Unavailable(name, nil)
	}
	return clone(rows), nil
}

func (s *Store) WriteTable(ctx context.Context, name string, rows []tables.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.tables[name] = clone(rows)
	s.mu.Unlock()
	return nil
}

func (s *Store) UpdateTable(ctx context.Context, name string, fn func(rows []tables.Row) ([]tables.Row, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := fn(clone(s.tables[name]))
	if err != nil {
		return err
	}
	s.tables[name] = clone(rows)
	return nil
}

func clone(rows []tables.Row) []tables.Row {
	out := make([]tables.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

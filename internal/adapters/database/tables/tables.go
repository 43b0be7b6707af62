// Package tables is the record store contract: named tables of ordered rows
// with whole-table read and write granularity.
package tables

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/campus-events/event-aggregator/internal/domain/common/errorz"
)

// ErrStorageUnavailable is returned when a table's backing resource is
// missing, corrupt or cannot be written.
var ErrStorageUnavailable = errorz.ErrStorageUnavailable

// Row is one record, column name to cell text.
type Row map[string]string

// Get returns the trimmed cell value.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r[column])
}

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Store is implemented by every backend.
type Store interface {
	// ReadTable returns the rows of a table in table order.
	ReadTable(ctx context.Context, name string) ([]Row, error)
	// WriteTable replaces the whole table atomically.
	WriteTable(ctx context.Context, name string, rows []Row) error
	// UpdateTable runs a read-modify-write cycle under the table's exclusive
	// lock. fn receives the current rows (empty when the table is missing or
	// unreadable) and returns the rows to persist. If fn returns an error
	// nothing is written and the error is returned as is.
	UpdateTable(ctx context.Context, name string, fn func(rows []Row) ([]Row, error)) error
}

// Unavailable wraps err so that errors.Is(err, ErrStorageUnavailable) holds.
func Unavailable(table string, err error) error {
	if err == nil {
		return fmt.Errorf("table %s: %w", table, ErrStorageUnavailable)
	}
	return fmt.Errorf("table %s: %w: %v", table, ErrStorageUnavailable, err)
}

// ReadOrEmpty reads a table and treats an unavailable one as empty.
func ReadOrEmpty(ctx context.Context, s Store, name string) ([]Row, error) {
	rows, err := s.ReadTable(ctx, name)
	if errors.Is(err, ErrStorageUnavailable) {
		return nil, nil
	}
	return rows, err
}

// AppendRow adds a row at the end of the table.
func AppendRow(ctx context.Context, s Store, name string, row Row) error {
	return s.UpdateTable(ctx, name, func(rows []Row) ([]Row, error) {
		return append(rows, row), nil
	})
}

// UpdateRows applies update to every row matching match and returns how
// many rows were changed. The table is not rewritten when nothing matches.
func UpdateRows(ctx context.Context, s Store, name string, match func(Row) bool, update func(Row)) (int, error) {
	var n int
	err := s.UpdateTable(ctx, name, func(rows []Row) ([]Row, error) {
		for _, r := range rows {
			if match(r) {
				update(r)
				n++
			}
		}
		if n == 0 {
			return nil, errNothingChanged
		}
		return rows, nil
	})
	if errors.Is(err, errNothingChanged) {
		return 0, nil
	}
	return n, err
}

// DeleteRows removes every row matching match and returns how many went.
func DeleteRows(ctx context.Context, s Store, name string, match func(Row) bool) (int, error) {
	var n int
	err := s.UpdateTable(ctx, name, func(rows []Row) ([]Row, error) {
		kept := rows[:0]
		for _, r := range rows {
			if match(r) {
				n++
				continue
			}
			kept = append(kept, r)
		}
		if n == 0 {
			return nil, errNothingChanged
		}
		return kept, nil
	})
	if errors.Is(err, errNothingChanged) {
		return 0, nil
	}
	return n, err
}

var errNothingChanged = errors.New("nothing changed")

// Package xlsx keeps every table in its own spreadsheet workbook.
//
// A table named "Events" lives in <dir>/Events.xlsx with a single sheet of
// the same name. The first row is the header, every following row a record.
// Writes go to a temporary file in the same directory which is then renamed
// over the workbook, so readers never observe a half written table.
package xlsx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/campus-events/event-aggregator/internal/adapters/database/tables"
	"github.com/campus-events/event-aggregator/pkg/logger/types"
)

type Store struct {
	dir    string
	schema tables.Schema
	logger *types.Logger

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func New(dir string, schema tables.Schema, logger *types.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data dir %s", dir)
	}
	return &Store{
		dir:    dir,
		schema: schema,
		logger: logger,
		locks:  make(map[string]*sync.RWMutex),
	}, nil
}

// Path returns the workbook file of a table.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".xlsx")
}

func (s *Store) lock(name string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[name] = l
	}
	return l
}

func (s *Store) ReadTable(ctx context.Context, name string) ([]tables.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := s.lock(name)
	l.RLock()
	defer l.RUnlock()
	return s.read(name)
}

func (s *Store) WriteTable(ctx context.Context, name string, rows []tables.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()
	return s.write(name, rows)
}

func (s *Store) UpdateTable(ctx context.Context, name string, fn func(rows []tables.Row) ([]tables.Row, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	rows, err := s.read(name)
	if err != nil {
		if !errors.Is(err, tables.ErrStorageUnavailable) {
			return err
		}
		s.recover(name, err)
		rows = nil
	}

	rows, err = fn(rows)
	if err != nil {
		return err
	}
	return s.write(name, rows)
}

// recover moves a corrupt workbook aside so the next write can recreate it.
func (s *Store) recover(name string, cause error) {
	path := s.Path(name)
	if _, err := os.Stat(path); err != nil {
		s.logger.Infof("table %s does not exist yet, creating it", name)
		return
	}
	aside := fmt.Sprintf("%s.corrupt-%s", path, time.Now().Format("20060102150405"))
	if err := os.Rename(path, aside); err != nil {
		s.logger.Errorf("failed to move corrupt table %s aside: %v", name, err)
		return
	}
	s.logger.Warnf("table %s was unreadable (%v), moved to %s", name, cause, aside)
}

func (s *Store) read(name string) ([]tables.Row, error) {
	path := s.Path(name)
	if _, err := os.Stat(path); err != nil {
		return nil, tables.Unavailable(name, err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, tables.Unavailable(name, err)
	}
	defer func() {
		if errClose := f.Close(); errClose != nil {
			s.logger.Errorf("failed to close %s: %v", path, errClose)
		}
	}()

	sheet := name
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, tables.Unavailable(name, errors.New("workbook has no sheets"))
		}
		sheet = list[0]
	}

	grid, err := f.GetRows(sheet)
	if err != nil {
		return nil, tables.Unavailable(name, err)
	}
	if len(grid) == 0 {
		return []tables.Row{}, nil
	}

	header := make([]string, len(grid[0]))
	for i, h := range grid[0] {
		header[i] = strings.TrimSpace(h)
	}

	rows := make([]tables.Row, 0, len(grid)-1)
	for _, cells := range grid[1:] {
		if blank(cells) {
			continue
		}
		row := make(tables.Row, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(cells) {
				row[col] = cells[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Store) write(name string, rows []tables.Row) error {
	columns := s.schema.Columns(name, rows)

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		return tables.Unavailable(name, err)
	}
	if err := f.SetSheetRow(name, "A1", &columns); err != nil {
		return tables.Unavailable(name, err)
	}
	for i, r := range rows {
		cells := make([]interface{}, len(columns))
		for j, col := range columns {
			cells[j] = r[col]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return tables.Unavailable(name, err)
		}
		if err = f.SetSheetRow(name, cell, &cells); err != nil {
			return tables.Unavailable(name, err)
		}
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+"-*.xlsx")
	if err != nil {
		return tables.Unavailable(name, err)
	}
	tmpPath := tmp.Name()
	if _, err = f.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return tables.Unavailable(name, err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return tables.Unavailable(name, err)
	}
	if err = os.Rename(tmpPath, s.Path(name)); err != nil {
		_ = os.Remove(tmpPath)
		return tables.Unavailable(name, err)
	}
	return nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

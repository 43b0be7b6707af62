package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campus-events/event-aggregator/internal/adapters/database/tables"
)

// RecordTable marks a table as existing, even when it has no rows.
type RecordTable struct {
	Name      string `gorm:"primaryKey"`
	UpdatedAt time.Time
}

// RecordRow is one row of a record table. Columns and Values are parallel
// arrays so a row keeps whatever columns it was written with.
type RecordRow struct {
	ID       uint           `gorm:"primaryKey"`
	Table    string         `gorm:"column:table_name;not null;index:idx_record_rows_position,priority:1"`
	Position int            `gorm:"not null;index:idx_record_rows_position,priority:2"`
	Columns  pq.StringArray `gorm:"type:text[]"`
	Values   pq.StringArray `gorm:"type:text[]"`
}

// TableStorage is a tables.Store on top of postgres. Every write of a table
// happens in one transaction holding an advisory lock keyed by the table
// name, so read-modify-write cycles are serialized across processes too.
type TableStorage struct {
	db *gorm.DB
}

func NewTableStorage(db *gorm.DB) *TableStorage {
	return &TableStorage{
		db: db,
	}
}

func (s *TableStorage) ReadTable(ctx context.Context, name string) ([]tables.Row, error) {
	rows, err := read(s.db.WithContext(ctx), name)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TableStorage) WriteTable(ctx context.Context, name string, rows []tables.Row) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockTable(tx, name); err != nil {
			return err
		}
		return replace(tx, name, rows)
	})
}

func (s *TableStorage) UpdateTable(ctx context.Context, name string, fn func(rows []tables.Row) ([]tables.Row, error)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockTable(tx, name); err != nil {
			return err
		}
		rows, err := read(tx, name)
		if err != nil && !errors.Is(err, tables.ErrStorageUnavailable) {
			return err
		}
		rows, err = fn(rows)
		if err != nil {
			return err
		}
		return replace(tx, name, rows)
	})
}

func lockTable(tx *gorm.DB, name string) error {
	if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", name).Error; err != nil {
		return tables.Unavailable(name, errors.Wrap(err, "advisory lock"))
	}
	return nil
}

func read(db *gorm.DB, name string) ([]tables.Row, error) {
	var exists int64
	if err := db.Model(&RecordTable{}).Where("name = ?", name).Count(&exists).Error; err != nil {
		return nil, tables.Unavailable(name, err)
	}
	if exists == 0 {
		return nil, tables.Unavailable(name, nil)
	}

	var records []RecordRow
	if err := db.Where("table_name = ?", name).Order("position").Find(&records).Error; err != nil {
		return nil, tables.Unavailable(name, err)
	}
	return toRows(records), nil
}

func replace(tx *gorm.DB, name string, rows []tables.Row) error {
	if err := tx.Where("table_name = ?", name).Delete(&RecordRow{}).Error; err != nil {
		return tables.Unavailable(name, errors.Wrapf(err, "clear rows"))
	}
	if records := fromRows(name, rows); len(records) > 0 {
		if err := tx.CreateInBatches(records, 200).Error; err != nil {
			return tables.Unavailable(name, errors.Wrapf(err, "insert %d rows", len(records)))
		}
	}
	err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&RecordTable{Name: name, UpdatedAt: time.Now()}).Error
	if err != nil {
		return tables.Unavailable(name, errors.Wrap(err, "touch table"))
	}
	return nil
}

func toRows(records []RecordRow) []tables.Row {
	rows := make([]tables.Row, 0, len(records))
	for _, rec := range records {
		row := make(tables.Row, len(rec.Columns))
		for i, col := range rec.Columns {
			if i < len(rec.Values) {
				row[col] = rec.Values[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func fromRows(name string, rows []tables.Row) []RecordRow {
	records := make([]RecordRow, 0, len(rows))
	for i, r := range rows {
		columns := tables.DefaultSchema.Columns(name, []tables.Row{r})
		rec := RecordRow{
			Table:    name,
			Position: i,
			Columns:  make(pq.StringArray, 0, len(r)),
			Values:   make(pq.StringArray, 0, len(r)),
		}
		for _, col := range columns {
			v, ok := r[col]
			if !ok {
				continue
			}
			rec.Columns = append(rec.Columns, col)
			rec.Values = append(rec.Values, v)
		}
		records = append(records, rec)
	}
	return records
}

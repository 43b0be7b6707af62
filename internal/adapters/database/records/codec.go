// Package records maps record store rows to domain entities.
//
// Decoding never fails a whole table: a malformed cell decodes to the zero
// value of its field and the row is kept. Encoding merges onto the row the
// entity was decoded from, so columns the entity does not know survive a
// rewrite.
package records

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/campus-events/event-aggregator/internal/adapters/database/tables"
	"github.com/campus-events/event-aggregator/internal/domain/utils/location"
)

const (
	DateLayout      = "2006-01-02"
	TimeLayout      = "15:04"
	TimestampLayout = "2006-01-02 15:04:05"
)

var timeLayouts = []string{TimeLayout, "15:04:05", "3:04 PM", "3:04PM"}

var timestampLayouts = []string{TimestampLayout, time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04:05", DateLayout}

// codec binds an entity type to the table it lives in.
type codec[T any] struct {
	table  string
	id     func(T) string
	decode func(tables.Row) T
	encode func(T) tables.Row
}

func (c codec[T]) list(ctx context.Context, store tables.Store) ([]T, error) {
	rows, err := tables.ReadOrEmpty(ctx, store, c.table)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		out = append(out, c.decode(r))
	}
	return out, nil
}

// mutate runs fn over the decoded table under the table lock and writes back
// whatever fn returns.
func (c codec[T]) mutate(ctx context.Context, store tables.Store, fn func([]T) ([]T, error)) error {
	return store.UpdateTable(ctx, c.table, func(rows []tables.Row) ([]tables.Row, error) {
		original := make(map[string]tables.Row, len(rows))
		items := make([]T, 0, len(rows))
		for _, r := range rows {
			item := c.decode(r)
			if id := c.id(item); id != "" {
				original[id] = r
			}
			items = append(items, item)
		}

		items, err := fn(items)
		if err != nil {
			return nil, err
		}

		out := make([]tables.Row, 0, len(items))
		for _, item := range items {
			row := c.encode(item)
			if prev, ok := original[c.id(item)]; ok && c.id(item) != "" {
				merged := prev.Clone()
				for k, v := range row {
					merged[k] = v
				}
				row = merged
			}
			out = append(out, row)
		}
		return out, nil
	})
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(location.Location()).Format(TimestampLayout)
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, location.Location()); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ParseStart combines an event date and time of day in the configured
// location. An unparseable date gives the zero time. A missing time of day
// means midnight.
func ParseStart(date, clock string) time.Time {
	day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), location.Location())
	if err != nil {
		// full timestamps written by other tools
		day = parseTimestamp(date)
		if day.IsZero() {
			return time.Time{}
		}
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, location.Location())
	}

	clock = strings.TrimSpace(clock)
	if clock == "" {
		return day
	}
	for _, layout := range timeLayouts {
		if t, errParse := time.Parse(layout, strings.ToUpper(clock)); errParse == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, location.Location())
		}
	}
	return time.Time{}
}

func parseInt(s string) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	// spreadsheets like to store integers as floats
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "y":
		return true
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package records

import (
	"context"
	"strconv"

	"github.com/campus-events/event-aggregator/internal/adapters/database/tables"
	"github.com/campus-events/event-aggregator/internal/domain/common/errorz"
	"github.com/campus-events/event-aggregator/internal/domain/entity"
)

var eventCodec = codec[entity.Event]{
	table:  tables.Events,
	id:     func(e entity.Event) string { return e.ID },
	decode: EventFromRow,
	encode: EventToRow,
}

func EventFromRow(r tables.Row) entity.Event {
	return entity.Event{
		ID:               r.Get("Event_ID"),
		Title:            r.Get("Title"),
		Category:         r.Get("Category"),
		Date:             r.Get("Date"),
		Time:             r.Get("Time"),
		StartTime:        ParseStart(r.Get("Date"), r.Get("Time")),
		Venue:            r.Get("Venue"),
		Description:      r.Get("Description"),
		Organizer:        r.Get("Organizer"),
		OrganizerContact: r.Get("Organizer_Contact"),
		Capacity:         parseInt(r.Get("Capacity")),
		RegisteredCount:  parseInt(r.Get("Registered_Count")),
		PosterPath:       r.Get("Poster_Path"),
		CreatedAt:        parseTimestamp(r.Get("Created_Date")),
		CreatedBy:        r.Get("Created_By"),
		Status:           entity.ParseEventStatus(r.Get("Status")),
	}
}

func EventToRow(e entity.Event) tables.Row {
	status := e.Status
	if status == "" {
		status = entity.EventStatusActive
	}
	return tables.Row{
		"Event_ID":          e.ID,
		"Title":             e.Title,
		"Category":          e.Category,
		"Date":              e.Date,
		"Time":              e.Time,
		"Venue":             e.Venue,
		"Description":       e.Description,
		"Organizer":         e.Organizer,
		"Organizer_Contact": e.OrganizerContact,
		"Capacity":          strconv.Itoa(e.Capacity),
		"Registered_Count":  strconv.Itoa(e.RegisteredCount),
		"Poster_Path":       e.PosterPath,
		"Created_Date":      formatTimestamp(e.CreatedAt),
		"Created_By":        e.CreatedBy,
		"Status":            string(status),
	}
}

type EventStorage struct {
	store tables.Store
}

func NewEventStorage(store tables.Store) *EventStorage {
	return &EventStorage{
		store: store,
	}
}

func (s *EventStorage) List(ctx context.Context) ([]entity.Event, error) {
	return eventCodec.list(ctx, s.store)
}

func (s *EventStorage) Get(ctx context.Context, id string) (*entity.Event, error) {
	events, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range events {
		if events[i].ID == id {
			return &events[i], nil
		}
	}
	return nil, errorz.ErrEventNotFound
}

func (s *EventStorage) Create(ctx context.Context, event *entity.Event) error {
	return eventCodec.mutate(ctx, s.store, func(events []entity.Event) ([]entity.Event, error) {
		return append(events, *event), nil
	})
}

// Update applies fn to the event with the given id under the table lock.
// Nothing is written if fn fails.
func (s *EventStorage) Update(ctx context.Context, id string, fn func(event *entity.Event) error) (*entity.Event, error) {
	var updated *entity.Event
	err := eventCodec.mutate(ctx, s.store, func(events []entity.Event) ([]entity.Event, error) {
		for i := range events {
			if events[i].ID != id {
				continue
			}
			if err := fn(&events[i]); err != nil {
				return nil, err
			}
			e := events[i]
			updated = &e
			return events, nil
		}
		return nil, errorz.ErrEventNotFound
	})
	return updated, err
}

// SetRegisteredCount stores a recomputed participant count.
func (s *EventStorage) SetRegisteredCount(ctx context.Context, id string, count int) error {
	_, err := s.Update(ctx, id, func(event *entity.Event) error {
		event.RegisteredCount = count
		return nil
	})
	return err
}

func (s *EventStorage) Delete(ctx context.Context, id string) error {
	n, err := tables.DeleteRows(ctx, s.store, tables.Events, func(r tables.Row) bool {
		return r.Get("Event_ID") == id
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return errorz.ErrEventNotFound
	}
	return nil
}

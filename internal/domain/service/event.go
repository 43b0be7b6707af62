package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"

	"github.com/campus-events/event-aggregator/internal/adapters/messaging"
	"github.com/campus-events/event-aggregator/internal/domain/common/errorz"
	"github.com/campus-events/event-aggregator/internal/domain/dto"
	"github.com/campus-events/event-aggregator/internal/domain/entity"
	"github.com/campus-events/event-aggregator/internal/domain/utils/calendar"
	"github.com/campus-events/event-aggregator/internal/domain/utils/location"
	"github.com/campus-events/event-aggregator/internal/domain/utils/poster"
	"github.com/campus-events/event-aggregator/pkg/logger/types"
)

type EventStorage interface {
	List(ctx context.Context) ([]entity.Event, error)
	Get(ctx context.Context, id string) (*entity.Event, error)
	Create(ctx context.Context, event *entity.Event) error
	Update(ctx context.Context, id string, fn func(event *entity.Event) error) (*entity.Event, error)
	SetRegisteredCount(ctx context.Context, id string, count int) error
	Delete(ctx context.Context, id string) error
}

type eventRegistrationStorage interface {
	GetByEventID(ctx context.Context, eventID string) ([]entity.Registration, error)
	GetByUser(ctx context.Context, email string) ([]entity.Registration, error)
	CountActive(ctx context.Context, eventID string) (int, error)
	DeleteByEventID(ctx context.Context, eventID string) (int, error)
}

type EventService struct {
	logger *types.Logger

	storage             EventStorage
	registrationStorage eventRegistrationStorage
	notifier            notifier
	locker              Locker
	publisher           EventPublisher
	validate            *validator.Validate
	leads               []time.Duration

	postersDir string
	now        func() time.Time
}

func NewEventService(
	logger *types.Logger,
	storage EventStorage,
	registrationStorage eventRegistrationStorage,
	notifier notifier,
	locker Locker,
	publisher EventPublisher,
	validate *validator.Validate,
	leads []time.Duration,
) *EventService {
	return &EventService{
		logger: logger,

		storage:             storage,
		registrationStorage: registrationStorage,
		notifier:            notifier,
		locker:              locker,
		publisher:           publisher,
		validate:            validate,
		leads:               leads,

		now: time.Now,
	}
}

func (s *EventService) WithClock(now func() time.Time) *EventService {
	s.now = now
	return s
}

// WithPosters copies event posters into dir instead of keeping the path the
// admin picked.
func (s *EventService) WithPosters(dir string) *EventService {
	s.postersDir = dir
	return s
}

// Create adds a new active event with no registrations.
func (s *EventService) Create(ctx context.Context, session dto.Session, input dto.EventInput) (*entity.Event, error) {
	if !session.IsAdmin {
		return nil, errorz.ErrForbidden
	}
	input = normalizeEventInput(input)
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	start, err := parseEventStart(input.Date, input.Time)
	if err != nil {
		return nil, err
	}

	id := newID()
	posterPath, err := s.storePoster(id, input.PosterPath)
	if err != nil {
		return nil, err
	}

	event := &entity.Event{
		ID:               id,
		Title:            input.Title,
		Category:         input.Category,
		Date:             input.Date,
		Time:             input.Time,
		StartTime:        start,
		Venue:            input.Venue,
		Description:      input.Description,
		Organizer:        input.Organizer,
		OrganizerContact: input.OrganizerContact,
		Capacity:         input.Capacity,
		PosterPath:       posterPath,
		CreatedAt:        s.now(),
		CreatedBy:        session.UserEmail,
		Status:           entity.EventStatusActive,
	}
	if err = s.storage.Create(ctx, event); err != nil {
		return nil, err
	}
	s.logger.Infof("Event created (event_id=%s, title=%q, by=%s)", event.ID, event.Title, session.UserEmail)
	return event, nil
}

// Update replaces the editable fields of the event. The capacity may not drop
// below the number of active registrations. Participants are told when the
// date, time or venue change.
func (s *EventService) Update(ctx context.Context, session dto.Session, id string, input dto.EventInput) (*entity.Event, error) {
	if !session.IsAdmin {
		return nil, errorz.ErrForbidden
	}
	input = normalizeEventInput(input)
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	start, err := parseEventStart(input.Date, input.Time)
	if err != nil {
		return nil, err
	}
	posterPath, err := s.storePoster(id, input.PosterPath)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	active, err := s.registrationStorage.CountActive(ctx, id)
	if err != nil {
		return nil, err
	}

	var before entity.Event
	updated, err := s.storage.Update(ctx, id, func(event *entity.Event) error {
		if input.Capacity < active {
			return fmt.Errorf("%w: %d registered, capacity %d", errorz.ErrCapacityBelowRegistered, active, input.Capacity)
		}
		before = *event

		event.Title = input.Title
		event.Category = input.Category
		event.Date = input.Date
		event.Time = input.Time
		event.StartTime = start
		event.Venue = input.Venue
		event.Description = input.Description
		event.Organizer = input.Organizer
		event.OrganizerContact = input.OrganizerContact
		event.Capacity = input.Capacity
		event.RegisteredCount = active
		if posterPath != "" {
			event.PosterPath = posterPath
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infof("Event updated (event_id=%s, by=%s)", id, session.UserEmail)

	if changes := eventChanges(before, *updated); len(changes) > 0 {
		s.notifyParticipants(ctx, *updated, entity.NotificationKindEventUpdate,
			fmt.Sprintf("Event updated: %s", updated.Title),
			fmt.Sprintf("%q has changed:\n\n%s\n", updated.Title, strings.Join(changes, "\n")),
		)
	}
	return updated, nil
}

// Cancel marks the event cancelled and tells its participants. Registrations
// are kept.
func (s *EventService) Cancel(ctx context.Context, session dto.Session, id string) (*entity.Event, error) {
	if !session.IsAdmin {
		return nil, errorz.ErrForbidden
	}

	unlock, err := s.lockEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	event, err := s.storage.Update(ctx, id, func(event *entity.Event) error {
		if !event.IsActive() {
			return errorz.ErrEventCancelled
		}
		event.Status = entity.EventStatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infof("Event cancelled (event_id=%s, by=%s)", id, session.UserEmail)

	s.notifyParticipants(ctx, *event, entity.NotificationKindEventUpdate,
		fmt.Sprintf("Event cancelled: %s", event.Title),
		fmt.Sprintf("Unfortunately %q scheduled for %s %s has been cancelled.\n", event.Title, event.Date, event.Time),
	)

	if s.publisher != nil {
		errPublish := s.publisher.Publish(ctx, messaging.TopicEventCancelled, messaging.Event{
			EventID:    event.ID,
			EventTitle: event.Title,
			OccurredAt: s.now(),
		})
		if errPublish != nil {
			s.logger.Errorf("failed to publish %s (event_id=%s): %v", messaging.TopicEventCancelled, event.ID, errPublish)
		}
	}
	return event, nil
}

// Delete removes the event and all of its registrations.
func (s *EventService) Delete(ctx context.Context, session dto.Session, id string) error {
	if !session.IsAdmin {
		return errorz.ErrForbidden
	}

	unlock, err := s.lockEvent(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err = s.storage.Delete(ctx, id); err != nil {
		return err
	}
	n, err := s.registrationStorage.DeleteByEventID(ctx, id)
	if err != nil {
		return fmt.Errorf("delete registrations of event %s: %w", id, err)
	}
	s.logger.Infof("Event deleted (event_id=%s, registrations=%d, by=%s)", id, n, session.UserEmail)
	return nil
}

func (s *EventService) Get(ctx context.Context, id string) (*entity.Event, error) {
	return s.storage.Get(ctx, id)
}

// List returns every event with its registered count recomputed from the
// registrations table. Stale counts are written back.
func (s *EventService) List(ctx context.Context) ([]entity.Event, error) {
	events, err := s.storage.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range events {
		count, errCount := s.registrationStorage.CountActive(ctx, events[i].ID)
		if errCount != nil {
			return nil, errCount
		}
		if count == events[i].RegisteredCount {
			continue
		}
		s.logger.Warnf("registered count of event %s was %d, recounted %d", events[i].ID, events[i].RegisteredCount, count)
		events[i].RegisteredCount = count
		if err = s.storage.SetRegisteredCount(ctx, events[i].ID, count); err != nil {
			s.logger.Errorf("failed to store registered count (event_id=%s): %v", events[i].ID, err)
		}
	}
	return events, nil
}

// ListUpcoming returns active events taking place today or later, soonest
// first. Events with an unreadable date are left out.
func (s *EventService) ListUpcoming(ctx context.Context) ([]entity.Event, error) {
	events, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().In(location.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, location.Location())

	upcoming := make([]entity.Event, 0, len(events))
	for _, event := range events {
		if !event.IsActive() || !event.HasStart() || event.StartTime.Before(today) {
			continue
		}
		upcoming = append(upcoming, event)
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].StartTime.Before(upcoming[j].StartTime)
	})
	return upcoming, nil
}

// ExportRegistrations builds a workbook with the registrations of the event.
func (s *EventService) ExportRegistrations(ctx context.Context, session dto.Session, id string) (*bytes.Buffer, error) {
	if !session.IsAdmin {
		return nil, errorz.ErrForbidden
	}
	event, err := s.storage.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	regs, err := s.registrationStorage.GetByEventID(ctx, id)
	if err != nil {
		return nil, err
	}
	return registrationsToXLSX(*event, regs)
}

// ExportCalendar returns an iCalendar file with the events the user is
// registered for.
func (s *EventService) ExportCalendar(ctx context.Context, email string) ([]byte, error) {
	regs, err := s.registrationStorage.GetByUser(ctx, email)
	if err != nil {
		return nil, err
	}

	var events []entity.Event
	for _, reg := range regs {
		if !reg.IsActive() {
			continue
		}
		event, errGet := s.storage.Get(ctx, reg.EventID)
		if errors.Is(errGet, errorz.ErrEventNotFound) {
			continue
		}
		if errGet != nil {
			return nil, errGet
		}
		events = append(events, *event)
	}
	return calendar.ExportEventsToICS(events, s.leads)
}

func (s *EventService) notifyParticipants(ctx context.Context, event entity.Event, kind entity.NotificationKind, subject, message string) {
	regs, err := s.registrationStorage.GetByEventID(ctx, event.ID)
	if err != nil {
		s.logger.Errorf("failed to get participants of event %s: %v", event.ID, err)
		return
	}

	failed := 0
	for _, reg := range regs {
		if !reg.IsActive() {
			continue
		}
		if _, errNotify := s.notifier.Notify(ctx, entity.Notification{
			EventID:   event.ID,
			UserEmail: reg.UserEmail,
			Kind:      kind,
			Subject:   subject,
			Message:   message,
		}); errNotify != nil {
			failed++
		}
	}
	if failed > 0 {
		s.logger.Warnf("failed to notify %d participants of event %s", failed, event.ID)
	}
}

func (s *EventService) lockEvent(ctx context.Context, id string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Lock(ctx, "event:"+id)
}

func (s *EventService) validateInput(input dto.EventInput) error {
	if s.validate == nil {
		return nil
	}
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %v", errorz.ErrInvalidInput, err)
	}
	return nil
}

func normalizeEventInput(input dto.EventInput) dto.EventInput {
	input.Title = strings.TrimSpace(input.Title)
	input.Category = strings.TrimSpace(input.Category)
	input.Date = strings.TrimSpace(input.Date)
	input.Time = strings.TrimSpace(input.Time)
	input.Venue = strings.TrimSpace(input.Venue)
	input.Organizer = strings.TrimSpace(input.Organizer)
	input.OrganizerContact = strings.TrimSpace(input.OrganizerContact)
	return input
}

func parseEventStart(date, clock string) (time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, location.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date or time %q %q", errorz.ErrInvalidInput, date, clock)
	}
	return start, nil
}

func eventChanges(before, after entity.Event) []string {
	var changes []string
	if before.Date != after.Date {
		changes = append(changes, fmt.Sprintf("Date:  %s -> %s", before.Date, after.Date))
	}
	if before.Time != after.Time {
		changes = append(changes, fmt.Sprintf("Time:  %s -> %s", before.Time, after.Time))
	}
	if before.Venue != after.Venue {
		changes = append(changes, fmt.Sprintf("Venue: %s -> %s", before.Venue, after.Venue))
	}
	return changes
}

func registrationsToXLSX(event entity.Event, regs []entity.Registration) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	sheet := "Registrations"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}

	header := []interface{}{"Registration ID", "Name", "Email", "Student ID", "Department", "Year", "Registered", "Status", "Cancelled"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}

	row := 2
	for _, reg := range regs {
		cancelled := ""
		if !reg.CancelledAt.IsZero() {
			cancelled = reg.CancelledAt.In(location.Location()).Format("2006-01-02 15:04")
		}
		cells := []interface{}{
			reg.ID,
			reg.UserName,
			reg.UserEmail,
			reg.StudentID,
			reg.Department,
			reg.Year,
			reg.RegisteredAt.In(location.Location()).Format("2006-01-02 15:04"),
			string(reg.Status),
			cancelled,
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, err
		}
		if err = f.SetSheetRow(sheet, cell, &cells); err != nil {
			return nil, err
		}
		row++
	}

	if err := f.SetDocProps(&excelize.DocProperties{Title: event.Title, Creator: "event-aggregator"}); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return &buf, nil
}

func (s *EventService) storePoster(id, path string) (string, error) {
	if path == "" || s.postersDir == "" || poster.Stored(s.postersDir, path) {
		return path, nil
	}
	stored, err := poster.Save(s.postersDir, path, id, s.now())
	if err != nil {
		return "", fmt.Errorf("%w: %v", errorz.ErrInvalidInput, err)
	}
	s.logger.Infof("Poster saved (event_id=%s, path=%s)", id, stored)
	return stored, nil
}

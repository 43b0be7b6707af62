package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campus-events/event-aggregator/internal/adapters/messaging"
	"github.com/campus-events/event-aggregator/internal/adapters/metrics"
	"github.com/campus-events/event-aggregator/internal/domain/common/errorz"
	"github.com/campus-events/event-aggregator/internal/domain/dto"
	"github.com/campus-events/event-aggregator/internal/domain/entity"
	"github.com/campus-events/event-aggregator/pkg/logger/types"
	"github.com/campus-events/event-aggregator/pkg/smtp"
)

// Locker provides named mutual exclusion.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
	TryLock(ctx context.Context, key string) (func(), bool, error)
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event messaging.Event) error
}

type RegistrationStorage interface {
	List(ctx context.Context) ([]entity.Registration, error)
	GetByEventID(ctx context.Context, eventID string) ([]entity.Registration, error)
	GetByUser(ctx context.Context, email string) ([]entity.Registration, error)
	CountActive(ctx context.Context, eventID string) (int, error)
	Mutate(ctx context.Context, fn func(regs []entity.Registration) ([]entity.Registration, error)) error
}

type registrationUserStorage interface {
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
}

type registrationEventStorage interface {
	Get(ctx context.Context, id string) (*entity.Event, error)
	SetRegisteredCount(ctx context.Context, id string, count int) error
}

type notifier interface {
	Notify(ctx context.Context, n entity.Notification, attachments ...smtp.Attachment) (entity.Notification, error)
}

type ticketRenderer interface {
	Attachments(event entity.Event, registration entity.Registration) []smtp.Attachment
}

type RegistrationService struct {
	logger *types.Logger

	storage      RegistrationStorage
	userStorage  registrationUserStorage
	eventStorage registrationEventStorage
	notifier     notifier
	locker       Locker
	publisher    EventPublisher
	tickets      ticketRenderer
	metrics      *metrics.Metrics

	now func() time.Time
}

// NewRegistrationService creates the service. locker, publisher and metrics
// may be nil.
func NewRegistrationService(
	logger *types.Logger,
	storage RegistrationStorage,
	userStorage registrationUserStorage,
	eventStorage registrationEventStorage,
	notifier notifier,
	locker Locker,
	publisher EventPublisher,
	metrics *metrics.Metrics,
) *RegistrationService {
	return &RegistrationService{
		logger: logger,

		storage:      storage,
		userStorage:  userStorage,
		eventStorage: eventStorage,
		notifier:     notifier,
		locker:       locker,
		publisher:    publisher,
		metrics:      metrics,

		now: time.Now,
	}
}

// WithTickets attaches tickets and calendar files to confirmations.
func (s *RegistrationService) WithTickets(tickets ticketRenderer) *RegistrationService {
	s.tickets = tickets
	return s
}

func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	s.now = now
	return s
}

// Register signs the user up for the event.
//
// The duplicate check, the capacity check and the insert happen in one
// update of the registrations table, so concurrent calls can neither
// overbook the event nor create two active registrations for one user.
// A cancelled registration of the same user stays in the table as history.
func (s *RegistrationService) Register(ctx context.Context, eventID, userEmail string) (dto.RegistrationResult, error) {
	result, err := s.register(ctx, eventID, userEmail)
	s.metrics.Registration("register", resultLabel(err))
	return result, err
}

func (s *RegistrationService) register(ctx context.Context, eventID, userEmail string) (dto.RegistrationResult, error) {
	var result dto.RegistrationResult

	user, err := s.userStorage.GetByEmail(ctx, userEmail)
	if err != nil {
		return result, err
	}

	unlock, err := s.lockEvent(ctx, eventID)
	if err != nil {
		return result, err
	}
	defer unlock()

	// read under the event lock: Update and Cancel change capacity and status
	// while holding it
	event, err := s.eventStorage.Get(ctx, eventID)
	if err != nil {
		return result, err
	}
	if !event.IsActive() {
		return result, errorz.ErrEventCancelled
	}

	var registration entity.Registration
	err = s.storage.Mutate(ctx, func(regs []entity.Registration) ([]entity.Registration, error) {
		active := 0
		for i := range regs {
			if regs[i].EventID != eventID || !regs[i].IsActive() {
				continue
			}
			if entity.SameUser(regs[i].UserEmail, userEmail) {
				return nil, errorz.ErrAlreadyRegistered
			}
			active++
		}
		if active >= event.Capacity {
			return nil, errorz.ErrEventFull
		}

		registration = entity.Registration{
			ID:           newID(),
			EventID:      event.ID,
			EventTitle:   event.Title,
			UserEmail:    user.Email,
			UserName:     user.Name,
			StudentID:    user.StudentID,
			Department:   user.Department,
			Year:         user.Year,
			RegisteredAt: s.now(),
			Status:       entity.RegistrationStatusRegistered,
		}
		return append(regs, registration), nil
	})
	if err != nil {
		return result, err
	}
	s.logger.Infof("User registered (event_id=%s, user=%s, registration_id=%s)", eventID, user.Email, registration.ID)

	event.RegisteredCount = s.recount(ctx, eventID, event.RegisteredCount+1)

	var attachments []smtp.Attachment
	if s.tickets != nil {
		attachments = s.tickets.Attachments(*event, registration)
	}
	_, errNotify := s.notifier.Notify(ctx, entity.Notification{
		EventID:        event.ID,
		RegistrationID: registration.ID,
		UserEmail:      user.Email,
		Kind:           entity.NotificationKindConfirmation,
		Subject:        fmt.Sprintf("Registration confirmed: %s", event.Title),
		Message:        confirmationMessage(*event, *user),
	}, attachments...)

	s.publish(ctx, messaging.TopicRegistered, messaging.Event{
		EventID:        event.ID,
		EventTitle:     event.Title,
		RegistrationID: registration.ID,
		UserEmail:      user.Email,
		OccurredAt:     registration.RegisteredAt,
	})

	return dto.RegistrationResult{
		Registration: registration,
		Event:        *event,
		Message:      fmt.Sprintf("Successfully registered for %s", event.Title),
		Notified:     errNotify == nil,
	}, nil
}

// Unregister cancels the active registration of the user. The row is kept
// with status cancelled.
func (s *RegistrationService) Unregister(ctx context.Context, eventID, userEmail string) (string, error) {
	msg, err := s.unregister(ctx, eventID, userEmail)
	s.metrics.Registration("unregister", resultLabel(err))
	return msg, err
}

func (s *RegistrationService) unregister(ctx context.Context, eventID, userEmail string) (string, error) {
	unlock, err := s.lockEvent(ctx, eventID)
	if err != nil {
		return "", err
	}
	defer unlock()

	var cancelled entity.Registration
	err = s.storage.Mutate(ctx, func(regs []entity.Registration) ([]entity.Registration, error) {
		for i := len(regs) - 1; i >= 0; i-- {
			r := &regs[i]
			if r.EventID != eventID || !r.IsActive() || !entity.SameUser(r.UserEmail, userEmail) {
				continue
			}
			r.Status = entity.RegistrationStatusCancelled
			r.CancelledAt = s.now()
			cancelled = *r
			return regs, nil
		}
		return nil, errorz.ErrRegistrationNotFound
	})
	if err != nil {
		return "", err
	}
	s.logger.Infof("Registration cancelled (event_id=%s, user=%s, registration_id=%s)", eventID, cancelled.UserEmail, cancelled.ID)

	title := cancelled.EventTitle
	event, err := s.eventStorage.Get(ctx, eventID)
	if err != nil {
		// the event may have been deleted in the meantime
		s.logger.Warnf("failed to load event %s after cancellation: %v", eventID, err)
	} else {
		title = event.Title
		s.recount(ctx, eventID, event.RegisteredCount-1)
	}

	_, _ = s.notifier.Notify(ctx, entity.Notification{
		EventID:   eventID,
		UserEmail: cancelled.UserEmail,
		Kind:      entity.NotificationKindCancellation,
		Subject:   fmt.Sprintf("Registration cancelled: %s", title),
		Message:   fmt.Sprintf("Your registration for %q has been cancelled. You can register again while seats are available.", title),
	})

	s.publish(ctx, messaging.TopicUnregistered, messaging.Event{
		EventID:        eventID,
		EventTitle:     title,
		RegistrationID: cancelled.ID,
		UserEmail:      cancelled.UserEmail,
		OccurredAt:     cancelled.CancelledAt,
	})

	return fmt.Sprintf("Registration for %s cancelled", title), nil
}

// RegisterSession registers the session user. An empty eventID means the
// event selected in the session.
func (s *RegistrationService) RegisterSession(ctx context.Context, session dto.Session, eventID string) (dto.RegistrationResult, error) {
	eventID, err := sessionEvent(session, eventID)
	if err != nil {
		return dto.RegistrationResult{}, err
	}
	return s.Register(ctx, eventID, session.UserEmail)
}

func (s *RegistrationService) UnregisterSession(ctx context.Context, session dto.Session, eventID string) (string, error) {
	eventID, err := sessionEvent(session, eventID)
	if err != nil {
		return "", err
	}
	return s.Unregister(ctx, eventID, session.UserEmail)
}

// EventRegistrations returns every registration of the event, cancelled ones included.
func (s *RegistrationService) EventRegistrations(ctx context.Context, eventID string) ([]entity.Registration, error) {
	return s.storage.GetByEventID(ctx, eventID)
}

func (s *RegistrationService) UserRegistrations(ctx context.Context, email string) ([]entity.Registration, error) {
	return s.storage.GetByUser(ctx, email)
}

// UserEvents lists the events the user is actively registered for, soonest first.
func (s *RegistrationService) UserEvents(ctx context.Context, email string) ([]dto.UserEvent, error) {
	regs, err := s.storage.GetByUser(ctx, email)
	if err != nil {
		return nil, err
	}

	var events []dto.UserEvent
	for _, reg := range regs {
		if !reg.IsActive() {
			continue
		}
		event, errGet := s.eventStorage.Get(ctx, reg.EventID)
		if errors.Is(errGet, errorz.ErrEventNotFound) {
			continue
		}
		if errGet != nil {
			return nil, errGet
		}
		events = append(events, dto.NewUserEventFromEntity(*event, reg))
	}
	sortUserEvents(events)
	return events, nil
}

func (s *RegistrationService) lockEvent(ctx context.Context, eventID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Lock(ctx, "event:"+eventID)
}

// recount stores the number of active registrations of the event and
// returns it. On failure the error is logged and fallback is returned; the
// registration change itself is already committed.
func (s *RegistrationService) recount(ctx context.Context, eventID string, fallback int) int {
	count, err := s.storage.CountActive(ctx, eventID)
	if err != nil {
		s.logger.Errorf("failed to count registrations (event_id=%s): %v", eventID, err)
		return fallback
	}
	if err = s.eventStorage.SetRegisteredCount(ctx, eventID, count); err != nil {
		s.logger.Errorf("failed to store registered count (event_id=%s, count=%d): %v", eventID, count, err)
	}
	return count
}

func (s *RegistrationService) publish(ctx context.Context, topic string, event messaging.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Errorf("failed to publish %s (event_id=%s): %v", topic, event.EventID, err)
	}
}

func sessionEvent(session dto.Session, eventID string) (string, error) {
	if session.UserEmail == "" {
		return "", errorz.ErrSessionNotFound
	}
	if eventID == "" {
		eventID = session.SelectedEventID
	}
	if eventID == "" {
		return "", fmt.Errorf("%w: no event selected", errorz.ErrInvalidInput)
	}
	return eventID, nil
}

func confirmationMessage(event entity.Event, user entity.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", user.Name)
	fmt.Fprintf(&b, "you are registered for %q.\n\n", event.Title)
	fmt.Fprintf(&b, "Date:  %s\n", event.Date)
	fmt.Fprintf(&b, "Time:  %s\n", event.Time)
	fmt.Fprintf(&b, "Venue: %s\n", event.Venue)
	if event.Organizer != "" {
		fmt.Fprintf(&b, "Organizer: %s", event.Organizer)
		if event.OrganizerContact != "" {
			fmt.Fprintf(&b, " (%s)", event.OrganizerContact)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nYour ticket is attached. See you there!\n")
	return b.String()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errorz.ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, errorz.ErrEventFull):
		return "event_full"
	case errors.Is(err, errorz.ErrRegistrationNotFound):
		return "not_found"
	case errors.Is(err, errorz.ErrUserNotFound), errors.Is(err, errorz.ErrEventNotFound):
		return "unknown_reference"
	case errors.Is(err, errorz.ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "error"
	}
}

// sortUserEvents orders by start time. Events without a start go last.
func sortUserEvents(events []dto.UserEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].Event, events[j].Event
		if a.HasStart() != b.HasStart() {
			return a.HasStart()
		}
		return a.StartTime.Before(b.StartTime)
	})
}

// newID returns a short upper case identifier ("3F9A1C2B").
func newID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-events/event-aggregator/internal/adapters/database/memory"
	"github.com/campus-events/event-aggregator/internal/adapters/database/records"
	"github.com/campus-events/event-aggregator/internal/adapters/messaging"
	"github.com/campus-events/event-aggregator/internal/domain/common/errorz"
	"github.com/campus-events/event-aggregator/internal/domain/entity"
	"github.com/campus-events/event-aggregator/internal/domain/service"
	"github.com/campus-events/event-aggregator/internal/domain/utils/location"
	"github.com/campus-events/event-aggregator/internal/domain/utils/validator"
	"github.com/campus-events/event-aggregator/pkg/logger"
	"github.com/campus-events/event-aggregator/pkg/smtp"
)

func init() {
	location.Set(time.UTC)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []smtp.Message
	fail map[string]bool
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{fail: make(map[string]bool)}
}

func (m *fakeMailer) Send(_ context.Context, msg smtp.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[msg.To] {
		return fmt.Errorf("%w: mailbox %s unavailable", errorz.ErrDispatchFailed, msg.To)
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) FailFor(email string) {
	m.mu.Lock()
	m.fail[email] = true
	m.mu.Unlock()
}

// To returns the messages delivered to email whose subject contains subject.
func (m *fakeMailer) To(email, subject string) []smtp.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []smtp.Message
	for _, msg := range m.sent {
		if msg.To == email && strings.Contains(msg.Subject, subject) {
			out = append(out, msg)
		}
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *fakePublisher) Publish(_ context.Context, topic string, _ messaging.Event) error {
	p.mu.Lock()
	p.topics = append(p.topics, topic)
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type env struct {
	store         *memory.Store
	users         *records.UserStorage
	events        *records.EventStorage
	registrations *records.RegistrationStorage
	notifications *records.NotificationStorage
	feedbacks     *records.FeedbackStorage

	mailer    *fakeMailer
	publisher *fakePublisher
	clock     *clock
	locker    *memory.Locker

	notify       *service.NotifyService
	registration *service.RegistrationService
	reminder     *service.ReminderService
	event        *service.EventService
	user         *service.UserService
	feedback     *service.FeedbackService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	log := logger.Nop()
	store := memory.New()
	e := &env{
		store:         store,
		users:         records.NewUserStorage(store),
		events:        records.NewEventStorage(store),
		registrations: records.NewRegistrationStorage(store),
		notifications: records.NewNotificationStorage(store),
		feedbacks:     records.NewFeedbackStorage(store),

		mailer:    newFakeMailer(),
		publisher: &fakePublisher{},
		clock:     &clock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)},
		locker:    memory.NewLocker(),
	}

	e.notify = service.NewNotifyService(log, e.notifications, e.mailer, nil).
		WithClock(e.clock.Now).
		WithReminderMarker(e.registrations)
	e.registration = service.NewRegistrationService(
		log, e.registrations, e.users, e.events, e.notify, e.locker, e.publisher, nil,
	).WithClock(e.clock.Now)
	e.reminder = service.NewReminderService(
		log, e.events, e.registrations, e.notify, e.notify, e.locker, nil, service.ReminderOptions{},
	).WithClock(e.clock.Now)
	e.event = service.NewEventService(
		log, e.events, e.registrations, e.notify, e.locker, e.publisher,
		validator.New(validator.Options{}), e.reminder.Leads(),
	).WithClock(e.clock.Now)
	e.user = service.NewUserService(
		log, e.users, memory.NewSessionStorage(time.Hour), validator.New(validator.Options{EmailDomains: []string{"college.edu"}}),
	).WithBcryptCost(bcrypt.MinCost).WithClock(e.clock.Now)
	e.feedback = service.NewFeedbackService(
		log, e.feedbacks, e.events, e.registrations, validator.New(validator.Options{}),
	).WithClock(e.clock.Now)

	return e
}

func (e *env) addUser(t *testing.T, email string) entity.User {
	t.Helper()
	u := entity.User{
		Name:       strings.Split(email, "@")[0],
		Email:      email,
		StudentID:  "S-" + email,
		Department: "CS",
		Year:       "2",
	}
	require.NoError(t, e.users.Create(context.Background(), &u))
	return u
}

// addEvent stores an active event starting at start.
func (e *env) addEvent(t *testing.T, id string, capacity int, start time.Time) entity.Event {
	t.Helper()
	ev := entity.Event{
		ID:        id,
		Title:     "Event " + id,
		Category:  "Tech",
		Date:      start.Format("2006-01-02"),
		Time:      start.Format("15:04"),
		StartTime: start,
		Venue:     "Main hall",
		Organizer: "CS club",
		Capacity:  capacity,
		Status:    entity.EventStatusActive,
	}
	require.NoError(t, e.events.Create(context.Background(), &ev))
	return ev
}

// requireCountConsistent checks that the stored registered count matches
// the active registrations of the event.
func (e *env) requireCountConsistent(t *testing.T, eventID string) int {
	t.Helper()
	ctx := context.Background()
	active, err := e.registrations.CountActive(ctx, eventID)
	require.NoError(t, err)
	ev, err := e.events.Get(ctx, eventID)
	require.NoError(t, err)
	require.Equal(t, active, ev.RegisteredCount, "registered count of %s", eventID)
	return active
}

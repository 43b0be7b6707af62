package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-events/event-aggregator/internal/adapters/messaging"
	"github.com/campus-events/event-aggregator/internal/domain/common/errorz"
	"github.com/campus-events/event-aggregator/internal/domain/dto"
	"github.com/campus-events/event-aggregator/internal/domain/entity"
)

func TestRegisterUntilFull(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addEvent(t, "E1", 2, e.clock.Now().Add(72*time.Hour))
	e.addUser(t, "alice@college.edu")
	e.addUser(t, "bob@college.edu")
	e.addUser(t, "carol@college.edu")

	res, err := e.registration.Register(ctx, "E1", "alice@college.edu")
	require.NoError(t, err)
	assert.True(t, res.Notified)
	assert.Equal(t, entity.RegistrationStatusRegistered, res.Registration.Status)
	assert.Len(t, res.Registration.ID, 8)
	assert.Equal(t, 1, e.requireCountConsistent(t, "E1"))

	_, err = e.registration.Register(ctx, "E1", "bob@college.edu")
	require.NoError(t, err)
	assert.Equal(t, 2, e.requireCountConsistent(t, "E1"))

	_, err = e.registration.Register(ctx, "E1", "carol@college.edu")
	require.ErrorIs(t, err, errorz.ErrEventFull)
	assert.Equal(t, 2, e.requireCountConsistent(t, "E1"))

	assert.Len(t, e.mailer.To("alice@college.edu", "Registration confirmed"), 1)
	assert.Empty(t, e.mailer.To("carol@college.edu", "Registration confirmed"))
	assert.Equal(t, []string{messaging.TopicRegistered, messaging.TopicRegistered}, e.publisher.Topics())
}

func TestRegisterTwice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addEvent(t, "E1", 10, e.clock.Now().Add(72*time.Hour))
	e.addUser(t, "alice@college.edu")

	_, err := e.registration.Register(ctx, "E1", "alice@college.edu")
	require.NoError(t, err)

	_, err = e.registration.Register(ctx, "E1", "ALICE@college.edu")
	require.ErrorIs(t, err, errorz.ErrAlreadyRegistered)
	assert.Equal(t, 1, e.requireCountConsistent(t, "E1"))
}

func TestRegisterUnknownReferences(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addEvent(t, "E1", 10, e.clock.Now().Add(72*time.Hour))
	e.addUser(t, "alice@college.edu")

	_, err := e.registration.Register(ctx, "E1", "nobody@college.edu")
	require.ErrorIs(t, err, errorz.ErrUserNotFound)

	_, err = e.registration.Register(ctx, "NOPE", "alice@college.edu")
	require.ErrorIs(t, err, errorz.ErrEventNotFound)
}

func TestRegisterCancelledEvent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addEvent(t, "E1", 10, e.clock.Now().Add(72*time.Hour))
	e.addUser(t, "alice@college.edu")

	_, err := e.event.Cancel(ctx, dto.Session{UserEmail: "admin@college.edu", IsAdmin: true}, "E1")
	require.NoError(t, err)

	_, err = e.registration.Register(ctx, "E1", "alice@college.edu")
	require.ErrorIs(t, err, errorz.ErrEventCancelled)
}

func TestUnregister(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addEvent(t, "E1", 10, e.clock.Now().Add(72*time.Hour))
	e.addUser(t, "alice@college.edu")

	_, err := e.registration.Unregister(ctx, "E1", "alice@college.edu")
	require.ErrorIs(t, err, errorz.ErrRegistrationNotFound)

	_, err = e.registration.Register(ctx, "E1", "alice@college.edu")
	require.NoError(t, err)

	e.clock.Advance(time.Hour)
	msg, err := e.registration.Unregister(ctx, "E1", "alice@college.edu")
	require.NoError(t, err)
	assert.Contains(t, msg, "Event E1")
	assert.Equal(t, 0, e.requireCountConsistent(t, "E1"))

	_, err = e.registration.Unregister(ctx, "E1", "alice@college.edu")
	require.ErrorIs(t, err, errorz.ErrRegistrationNotFound)

	regs, err := e.registrations.GetByEventID(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, entity.RegistrationStatusCancelled, regs[0].Status)
	assert.True(t, regs[0].CancelledAt.Equal(e.clock.Now()))

	assert.Len(t, e.mailer.To("alice@college.edu", "Registration cancelled"), 1)
	assert.Equal(t, []string{messaging.TopicRegistered, messaging.TopicUnregistered}, e.publisher.Topics())
}

func TestCancelThenRegisterAgainKeepsHistory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addEvent(t, "E1", 1, e.clock.Now().Add(72*time.Hour))
	e.addUser(t, "alice@college.edu")

	first, err := e.registration.Register(ctx, "E1", "alice@college.edu")
	require.NoError(t, err)
	_, err = e.registration.Unregister(ctx, "E1", "alice@college.edu")
	require.NoError(t, err)
	second, err := e.registration.Register(ctx, "E1", "alice@college.edu")
	require.NoError(t, err)
	assert.NotEqual(t, first.Registration.ID, second.Registration.ID)

	regs, err := e.registrations.GetByEventID(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, entity.RegistrationStatusCancelled, regs[0].Status)
	assert.Equal(t, entity.RegistrationStatusRegistered, regs[1].Status)
	assert.Equal(t, 1, e.requireCountConsistent(t, "E1"))
}

func TestRegisterSucceedsWhenDispatchFails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addEvent(t, "E1", 10, e.clock.Now().Add(72*time.Hour))
	e.addUser(t, "alice@college.edu")
	e.mailer.FailFor("alice@college.edu")

	res, err := e.registration.Register(ctx, "E1", "alice@college.edu")
	require.NoError(t, err)
	assert.False(t, res.Notified)
	assert.Equal(t, 1, e.requireCountConsistent(t, "E1"))

	logged, err := e.notifications.List(ctx)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, entity.NotificationStatusFailed, logged[0].Status)
	assert.Equal(t, entity.NotificationKindConfirmation, logged[0].Kind)
}

func TestConcurrentRegistrationsDoNotOverbook(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	const capacity, users = 5, 30
	e.addEvent(t, "E1", capacity, e.clock.Now().Add(72*time.Hour))
	for i := 0; i < users; i++ {
		e.addUser(t, fmt.Sprintf("user%d@college.edu", i))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		full    int
		unknown []error
	)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.registration.Register(ctx, "E1", fmt.Sprintf("user%d@college.edu", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, errorz.ErrEventFull):
				full++
			default:
				unknown = append(unknown, err)
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, unknown)
	assert.Equal(t, capacity, ok)
	assert.Equal(t, users-capacity, full)
	assert.Equal(t, capacity, e.requireCountConsistent(t, "E1"))
}

func TestConcurrentDuplicateRegistration(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addEvent(t, "E1", 10, e.clock.Now().Add(72*time.Hour))
	e.addUser(t, "alice@college.edu")

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.registration.Register(ctx, "E1", "alice@college.edu")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, errorz.ErrAlreadyRegistered)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, e.requireCountConsistent(t, "E1"))
}

func TestRegisterSessionUsesSelectedEvent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addEvent(t, "E1", 10, e.clock.Now().Add(72*time.Hour))
	e.addUser(t, "alice@college.edu")

	_, err := e.registration.RegisterSession(ctx, dto.Session{UserEmail: "alice@college.edu"}, "")
	require.ErrorIs(t, err, errorz.ErrInvalidInput)

	_, err = e.registration.RegisterSession(ctx, dto.Session{}, "E1")
	require.ErrorIs(t, err, errorz.ErrSessionNotFound)

	session := dto.Session{UserEmail: "alice@college.edu", SelectedEventID: "E1"}
	res, err := e.registration.RegisterSession(ctx, session, "")
	require.NoError(t, err)
	assert.Equal(t, "E1", res.Event.ID)

	_, err = e.registration.UnregisterSession(ctx, session, "")
	require.NoError(t, err)
}

func TestUserEvents(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := e.clock.Now()
	e.addEvent(t, "LATER", 10, now.Add(96*time.Hour))
	e.addEvent(t, "SOON", 10, now.Add(24*time.Hour))
	e.addEvent(t, "DROPPED", 10, now.Add(48*time.Hour))
	e.addUser(t, "alice@college.edu")

	for _, id := range []string{"LATER", "SOON", "DROPPED"} {
		_, err := e.registration.Register(ctx, id, "alice@college.edu")
		require.NoError(t, err)
	}
	_, err := e.registration.Unregister(ctx, "DROPPED", "alice@college.edu")
	require.NoError(t, err)

	events, err := e.registration.UserEvents(ctx, "alice@college.edu")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "SOON", events[0].Event.ID)
	assert.Equal(t, "LATER", events[1].Event.ID)

	regs, err := e.registration.UserRegistrations(ctx, "alice@college.edu")
	require.NoError(t, err)
	assert.Len(t, regs, 3)
}

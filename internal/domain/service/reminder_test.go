package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-events/event-aggregator/internal/domain/entity"
)

func TestReminderScanIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addEvent(t, "E1", 10, e.clock.Now().Add(30*time.Hour))
	e.addUser(t, "alice@college.edu")
	e.addUser(t, "bob@college.edu")
	for _, email := range []string{"alice@college.edu", "bob@college.edu"} {
		_, err := e.registration.Register(ctx, "E1", email)
		require.NoError(t, err)
	}

	report, err := e.reminder.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DueEvents)
	assert.Equal(t, 2, report.Sent)
	assert.Zero(t, report.Failed)

	report, err = e.reminder.Scan(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Sent)

	e.clock.Advance(time.Hour)
	report, err = e.reminder.Scan(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Sent)

	assert.Len(t, e.mailer.To("alice@college.edu", "Reminder"), 1)
	assert.Len(t, e.mailer.To("bob@college.edu", "Reminder"), 1)

	regs, err := e.registrations.GetByEventID(ctx, "E1")
	require.NoError(t, err)
	for _, reg := range regs {
		assert.True(t, reg.Reminded(24*time.Hour), reg.UserEmail)
		assert.False(t, reg.Reminded(48*time.Hour), reg.UserEmail)
	}
}

func TestReminderLeadTimes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := e.clock.Now()
	e.addEvent(t, "FAR", 10, now.Add(50*time.Hour))
	e.addEvent(t, "TOOFAR", 10, now.Add(80*time.Hour))
	e.addEvent(t, "PAST", 10, now.Add(-2*time.Hour))
	e.addEvent(t, "SOON", 10, now.Add(3*time.Hour))
	e.addUser(t, "alice@college.edu")
	for _, id := range []string{"FAR", "TOOFAR", "PAST", "SOON"} {
		_, err := e.registration.Register(ctx, id, "alice@college.edu")
		require.NoError(t, err)
	}

	report, err := e.reminder.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DueEvents)
	assert.Equal(t, 1, report.Sent)

	reminders := e.mailer.To("alice@college.edu", "Reminder")
	require.Len(t, reminders, 1)
	assert.Contains(t, reminders[0].Subject, "Event FAR")
	assert.Contains(t, reminders[0].Subject, "2 days")

	// 26 hours later FAR is due for the day-before reminder and TOOFAR
	// for the two-day one
	e.clock.Advance(26 * time.Hour)
	report, err = e.reminder.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	assert.Len(t, e.mailer.To("alice@college.edu", "Event FAR starts in 1 day"), 1)
	assert.Len(t, e.mailer.To("alice@college.edu", "Event TOOFAR starts in 2 days"), 1)

	logged, err := e.notifications.List(ctx)
	require.NoError(t, err)
	kinds := map[entity.NotificationKind]int{}
	for _, n := range logged {
		kinds[n.Kind]++
	}
	assert.Equal(t, 2, kinds[entity.ReminderKind(48*time.Hour)])
	assert.Equal(t, 1, kinds[entity.ReminderKind(24*time.Hour)])
}

func TestReminderSkipsCancelledRegistrationsAndEvents(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addEvent(t, "E1", 10, e.clock.Now().Add(30*time.Hour))
	e.addEvent(t, "E2", 10, e.clock.Now().Add(30*time.Hour))
	e.addUser(t, "alice@college.edu")
	e.addUser(t, "bob@college.edu")

	_, err := e.registration.Register(ctx, "E1", "alice@college.edu")
	require.NoError(t, err)
	_, err = e.registration.Register(ctx, "E1", "bob@college.edu")
	require.NoError(t, err)
	_, err = e.registration.Unregister(ctx, "E1", "bob@college.edu")
	require.NoError(t, err)

	_, err = e.registration.Register(ctx, "E2", "bob@college.edu")
	require.NoError(t, err)
	_, err = e.events.Update(ctx, "E2", func(ev *entity.Event) error {
		ev.Status = entity.EventStatusCancelled
		return nil
	})
	require.NoError(t, err)

	report, err := e.reminder.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Len(t, e.mailer.To("alice@college.edu", "Reminder"), 1)
	assert.Empty(t, e.mailer.To("bob@college.edu", "Reminder"))
}

func TestReminderFailureDoesNotBlockOthers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addEvent(t, "E1", 10, e.clock.Now().Add(30*time.Hour))
	for _, email := range []string{"alice@college.edu", "bob@college.edu", "carol@college.edu"} {
		e.addUser(t, email)
		_, err := e.registration.Register(ctx, "E1", email)
		require.NoError(t, err)
	}
	e.mailer.FailFor("bob@college.edu")

	report, err := e.reminder.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, e.mailer.To("alice@college.edu", "Reminder"), 1)
	assert.Len(t, e.mailer.To("carol@college.edu", "Reminder"), 1)

	logged, err := e.notifications.List(ctx)
	require.NoError(t, err)
	failed := 0
	for _, n := range logged {
		if n.Kind == entity.ReminderKind(24*time.Hour) && n.Status == entity.NotificationStatusFailed {
			assert.Equal(t, "bob@college.edu", n.UserEmail)
			failed++
		}
	}
	assert.Equal(t, 1, failed)

	regs, err := e.registrations.GetByUser(ctx, "bob@college.edu")
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.False(t, regs[0].Reminded(24*time.Hour))
}

func TestReminderScanSkipsWhenLocked(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addEvent(t, "E1", 10, e.clock.Now().Add(30*time.Hour))
	e.addUser(t, "alice@college.edu")
	_, err := e.registration.Register(ctx, "E1", "alice@college.edu")
	require.NoError(t, err)

	unlock, ok, err := e.locker.TryLock(ctx, "reminder-scan")
	require.NoError(t, err)
	require.True(t, ok)

	report, err := e.reminder.Scan(ctx)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Empty(t, e.mailer.To("alice@college.edu", "Reminder"))

	unlock()
	report, err = e.reminder.Scan(ctx)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 1, report.Sent)
}

func TestReminderStartStop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addEvent(t, "E1", 10, e.clock.Now().Add(30*time.Hour))
	e.addUser(t, "alice@college.edu")
	_, err := e.registration.Register(ctx, "E1", "alice@college.edu")
	require.NoError(t, err)

	e.reminder.Start(ctx)
	e.reminder.Start(ctx)

	require.Eventually(t, func() bool {
		return len(e.mailer.To("alice@college.edu", "Reminder")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	e.reminder.Stop()
	e.reminder.Stop()
	assert.Len(t, e.mailer.To("alice@college.edu", "Reminder"), 1)
}

func TestReminderWindowEdges(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		name  string
		start time.Duration
		leads []time.Duration
	}{
		{"exactly one lead ahead", day, []time.Duration{day}},
		{"one minute short of the 24h lead", day - time.Minute, nil},
		{"end of the 24h band is start of the 48h one", 2 * day, []time.Duration{day, 2 * day}},
		{"end of the 48h band", 3 * day, []time.Duration{2 * day}},
		{"one minute past the 48h band", 3*day + time.Minute, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			e.addEvent(t, "E1", 10, e.clock.Now().Add(tt.start))
			e.addUser(t, "alice@college.edu")
			_, err := e.registration.Register(ctx, "E1", "alice@college.edu")
			require.NoError(t, err)

			report, err := e.reminder.Scan(ctx)
			require.NoError(t, err)
			assert.Equal(t, len(tt.leads), report.Sent)

			regs, err := e.registrations.GetByEventID(ctx, "E1")
			require.NoError(t, err)
			require.Len(t, regs, 1)
			for _, lead := range e.reminder.Leads() {
				want := false
				for _, l := range tt.leads {
					want = want || l == lead
				}
				assert.Equal(t, want, regs[0].Reminded(lead), "lead %s", lead)
			}
		})
	}
}

func TestReminderLeftPendingIsSentOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addEvent(t, "E1", 10, e.clock.Now().Add(30*time.Hour))
	e.addUser(t, "alice@college.edu")
	res, err := e.registration.Register(ctx, "E1", "alice@college.edu")
	require.NoError(t, err)

	// a reminder logged by a scan that died before delivering it
	require.NoError(t, e.notifications.Create(ctx, &entity.Notification{
		ID:             "N1",
		EventID:        "E1",
		RegistrationID: res.Registration.ID,
		UserEmail:      "alice@college.edu",
		Kind:           entity.ReminderKind(24 * time.Hour),
		Subject:        "Reminder: Event E1 starts in 1 day",
		Message:        "see you there",
		Status:         entity.NotificationStatusPending,
		CreatedAt:      e.clock.Now().Add(-time.Hour),
	}))

	report, err := e.reminder.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Flushed.Sent)
	assert.Zero(t, report.Sent)
	assert.Len(t, e.mailer.To("alice@college.edu", "Reminder"), 1)

	regs, err := e.registrations.GetByEventID(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.True(t, regs[0].Reminded(24*time.Hour))

	lead, ok := entity.ReminderLead(entity.ReminderKind(48 * time.Hour))
	assert.True(t, ok)
	assert.Equal(t, 48*time.Hour, lead)
	_, ok = entity.ReminderLead(entity.NotificationKindConfirmation)
	assert.False(t, ok)
}

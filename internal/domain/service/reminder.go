package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/campus-events/event-aggregator/internal/adapters/metrics"
	"github.com/campus-events/event-aggregator/internal/domain/entity"
	"github.com/campus-events/event-aggregator/internal/domain/utils/location"
	"github.com/campus-events/event-aggregator/pkg/logger/types"
)

const reminderScanLock = "reminder-scan"

type reminderEventStorage interface {
	List(ctx context.Context) ([]entity.Event, error)
}

type reminderRegistrationStorage interface {
	GetByEventID(ctx context.Context, eventID string) ([]entity.Registration, error)
	MarkReminded(ctx context.Context, id string, lead time.Duration) error
}

type pendingFlusher interface {
	FlushPending(ctx context.Context) (FlushReport, error)
}

// ReminderOptions configures the scheduler. Zero values take the defaults.
type ReminderOptions struct {
	// Leads are the lead times a reminder is sent for (24h and 48h).
	Leads []time.Duration
	// Window is the width of the catch band after now+lead (24h).
	Window time.Duration
	// Interval is the poll interval (1h).
	Interval time.Duration
}

func (o ReminderOptions) withDefaults() ReminderOptions {
	if len(o.Leads) == 0 {
		o.Leads = []time.Duration{24 * time.Hour, 48 * time.Hour}
	}
	if o.Window <= 0 {
		o.Window = 24 * time.Hour
	}
	if o.Interval <= 0 {
		o.Interval = time.Hour
	}
	return o
}

// ScanReport counts what one scan did.
type ScanReport struct {
	Skipped   bool
	DueEvents int
	Sent      int
	Failed    int
	Flushed   FlushReport
}

type ReminderService struct {
	logger *types.Logger

	eventStorage        reminderEventStorage
	registrationStorage reminderRegistrationStorage
	notifier            notifier
	flusher             pendingFlusher
	locker              Locker
	metrics             *metrics.Metrics

	opts ReminderOptions
	now  func() time.Time

	scanMu sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReminderService(
	logger *types.Logger,
	eventStorage reminderEventStorage,
	registrationStorage reminderRegistrationStorage,
	notifier notifier,
	flusher pendingFlusher,
	locker Locker,
	metrics *metrics.Metrics,
	opts ReminderOptions,
) *ReminderService {
	return &ReminderService{
		logger: logger,

		eventStorage:        eventStorage,
		registrationStorage: registrationStorage,
		notifier:            notifier,
		flusher:             flusher,
		locker:              locker,
		metrics:             metrics,

		opts: opts.withDefaults(),
		now:  time.Now,
	}
}

func (s *ReminderService) WithClock(now func() time.Time) *ReminderService {
	s.now = now
	return s
}

func (s *ReminderService) Leads() []time.Duration {
	return s.opts.Leads
}

// Start runs a scan right away and then every interval until ctx is done or
// Stop is called. Calling Start on a running scheduler does nothing.
func (s *ReminderService) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Infof("Starting reminder scheduler (interval=%s, leads=%v)", s.opts.Interval, s.opts.Leads)
	go s.loop(ctx, s.done)
}

// Stop cancels the loop and waits for the running scan to return.
func (s *ReminderService) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("Reminder scheduler stopped")
}

func (s *ReminderService) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Scan(ctx); err != nil && ctx.Err() == nil {
			s.logger.Errorf("reminder scan failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Scan sends the reminders that are due. A scan that finds another scan in
// progress, here or in another process sharing the locker, is skipped.
func (s *ReminderService) Scan(ctx context.Context) (ScanReport, error) {
	var report ScanReport

	if !s.scanMu.TryLock() {
		report.Skipped = true
		s.metrics.Scan("skipped", 0)
		return report, nil
	}
	defer s.scanMu.Unlock()

	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, reminderScanLock)
		if err != nil {
			s.metrics.Scan("failed", 0)
			return report, fmt.Errorf("acquire scan lock: %w", err)
		}
		if !ok {
			s.logger.Debug("reminder scan already running elsewhere, skipping")
			report.Skipped = true
			s.metrics.Scan("skipped", 0)
			return report, nil
		}
		defer unlock()
	}

	started := time.Now()
	err := s.scan(ctx, &report)
	if err != nil {
		s.metrics.Scan("failed", time.Since(started))
		return report, err
	}
	s.metrics.Scan("completed", time.Since(started))

	if report.Sent+report.Failed > 0 {
		s.logger.Infof("Reminder scan done (due_events=%d, sent=%d, failed=%d)", report.DueEvents, report.Sent, report.Failed)
	}
	return report, nil
}

func (s *ReminderService) scan(ctx context.Context, report *ScanReport) error {
	now := s.now().In(location.Location())
	s.logger.Debugf("Checking for events due for reminders (now=%s)", now.Format(time.RFC3339))

	// flushed reminders set their flags, so flush before deciding who is due
	if s.flusher != nil {
		var errFlush error
		report.Flushed, errFlush = s.flusher.FlushPending(ctx)
		if errFlush != nil {
			s.logger.Errorf("failed to flush pending notifications: %v", errFlush)
		}
	}

	events, err := s.eventStorage.List(ctx)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	for _, lead := range s.opts.Leads {
		for i := range events {
			event := &events[i]
			if !s.due(event, now, lead) {
				continue
			}
			report.DueEvents++
			s.logger.Infof("Sending %s reminders for event (event_id=%s)", entity.FormatLead(lead), event.ID)
			if err = s.remind(ctx, event, lead, report); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Errorf("failed to send %s reminders for event %s: %v", entity.FormatLead(lead), event.ID, err)
			}
		}
	}
	return nil
}

// due reports whether the event starts within [now+lead, now+lead+window].
func (s *ReminderService) due(event *entity.Event, now time.Time, lead time.Duration) bool {
	if !event.IsActive() || !event.HasStart() {
		return false
	}
	untilWindow := event.StartTime.Sub(now.Add(lead))
	return untilWindow >= 0 && untilWindow <= s.opts.Window
}

func (s *ReminderService) remind(ctx context.Context, event *entity.Event, lead time.Duration, report *ScanReport) error {
	regs, err := s.registrationStorage.GetByEventID(ctx, event.ID)
	if err != nil {
		return err
	}

	for _, reg := range regs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !reg.IsActive() || reg.Reminded(lead) {
			continue
		}

		_, errNotify := s.notifier.Notify(ctx, entity.Notification{
			EventID:        event.ID,
			RegistrationID: reg.ID,
			UserEmail:      reg.UserEmail,
			Kind:           entity.ReminderKind(lead),
			Subject:        fmt.Sprintf("Reminder: %s starts in %s", event.Title, humanLead(lead)),
			Message:        reminderMessage(*event, reg, lead),
		})
		if errNotify != nil {
			report.Failed++
			continue
		}
		report.Sent++

		if err = s.registrationStorage.MarkReminded(ctx, reg.ID, lead); err != nil {
			s.logger.Errorf("failed to mark reminder as sent (registration_id=%s, lead=%s): %v", reg.ID, entity.FormatLead(lead), err)
		}
	}
	return nil
}

func humanLead(lead time.Duration) string {
	hours := int(lead / time.Hour)
	switch {
	case hours == 24:
		return "1 day"
	case hours > 0 && hours%24 == 0:
		return fmt.Sprintf("%d days", hours/24)
	case hours == 1:
		return "1 hour"
	case hours > 0:
		return fmt.Sprintf("%d hours", hours)
	default:
		return lead.String()
	}
}

func reminderMessage(event entity.Event, reg entity.Registration, lead time.Duration) string {
	name := reg.UserName
	if name == "" {
		name = reg.UserEmail
	}
	return fmt.Sprintf(
		"Hi %s,\n\nthis is a reminder that %q starts in about %s.\n\nDate:  %s\nTime:  %s\nVenue: %s\n",
		name, event.Title, humanLead(lead), event.Date, event.Time, event.Venue,
	)
}

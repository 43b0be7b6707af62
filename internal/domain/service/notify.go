package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/campus-events/event-aggregator/internal/adapters/metrics"
	"github.com/campus-events/event-aggregator/internal/domain/common/errorz"
	"github.com/campus-events/event-aggregator/internal/domain/entity"
	"github.com/campus-events/event-aggregator/pkg/logger/types"
	"github.com/campus-events/event-aggregator/pkg/smtp"
)

// Mailer delivers one email.
type Mailer interface {
	Send(ctx context.Context, msg smtp.Message) error
}

type NotificationStorage interface {
	Create(ctx context.Context, n *entity.Notification) error
	SetStatus(ctx context.Context, id string, status entity.NotificationStatus, sentAt time.Time) error
	Pending(ctx context.Context) ([]entity.Notification, error)
}

type reminderMarker interface {
	MarkReminded(ctx context.Context, id string, lead time.Duration) error
}

// FlushReport counts what a FlushPending call did.
type FlushReport struct {
	Sent   int
	Failed int
}

type NotifyService struct {
	logger  *types.Logger
	storage NotificationStorage
	mailer  Mailer
	metrics *metrics.Metrics
	marker  reminderMarker

	// pending notifications younger than grace may still be in flight
	grace   time.Duration
	now     func() time.Time
	flushMu sync.Mutex
}

func NewNotifyService(
	logger *types.Logger,
	storage NotificationStorage,
	mailer Mailer,
	metrics *metrics.Metrics,
) *NotifyService {
	return &NotifyService{
		logger:  logger,
		storage: storage,
		mailer:  mailer,
		metrics: metrics,
		grace:   5 * time.Minute,
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (s *NotifyService) WithClock(now func() time.Time) *NotifyService {
	s.now = now
	return s
}

// WithGrace sets how old a pending notification must be before
// FlushPending sends it again.
func (s *NotifyService) WithGrace(grace time.Duration) *NotifyService {
	s.grace = grace
	return s
}

// WithReminderMarker lets FlushPending set the reminder flag of the
// registration a flushed reminder belongs to.
func (s *NotifyService) WithReminderMarker(marker reminderMarker) *NotifyService {
	s.marker = marker
	return s
}

// Notify records n as pending, dispatches it and records the outcome as sent
// or failed. A delivery failure is returned wrapped in
// errorz.ErrDispatchFailed; the notification log keeps the failed entry.
// Failing to write the log does not stop delivery.
func (s *NotifyService) Notify(ctx context.Context, n entity.Notification, attachments ...smtp.Attachment) (entity.Notification, error) {
	if n.ID == "" {
		n.ID = newID()
	}
	n.Status = entity.NotificationStatusPending
	n.CreatedAt = s.now()
	n.SentAt = time.Time{}

	logged := true
	if err := s.storage.Create(ctx, &n); err != nil {
		logged = false
		s.logger.Errorf("failed to log notification (id=%s, kind=%s, user=%s): %v", n.ID, n.Kind, n.UserEmail, err)
	}

	errSend := s.mailer.Send(ctx, smtp.Message{
		To:          n.UserEmail,
		Subject:     n.Subject,
		Body:        n.Message,
		Attachments: attachments,
	})
	s.finish(ctx, &n, errSend, logged)

	if errSend != nil {
		if !errors.Is(errSend, errorz.ErrDispatchFailed) {
			errSend = fmt.Errorf("%w: %v", errorz.ErrDispatchFailed, errSend)
		}
		return n, errSend
	}
	return n, nil
}

func (s *NotifyService) finish(ctx context.Context, n *entity.Notification, errSend error, logged bool) {
	if errSend != nil {
		n.Status = entity.NotificationStatusFailed
		s.logger.Warnf("failed to send %s notification (id=%s, event_id=%s, user=%s): %v", n.Kind, n.ID, n.EventID, n.UserEmail, errSend)
	} else {
		n.Status = entity.NotificationStatusSent
		n.SentAt = s.now()
	}
	s.metrics.Notification(string(n.Kind), string(n.Status))

	if !logged {
		return
	}
	if err := s.storage.SetStatus(ctx, n.ID, n.Status, n.SentAt); err != nil {
		s.logger.Errorf("failed to update notification status (id=%s, status=%s): %v", n.ID, n.Status, err)
	}
}

// FlushPending dispatches notifications left pending, for instance by a
// crash between logging and delivery. Attachments are not kept in the log,
// so a flushed confirmation goes out as plain text. A flushed reminder sets
// the reminder flag of its registration.
func (s *NotifyService) FlushPending(ctx context.Context) (FlushReport, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	var report FlushReport
	pending, err := s.storage.Pending(ctx)
	if err != nil {
		return report, err
	}

	cutoff := s.now().Add(-s.grace)
	for _, n := range pending {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if !n.CreatedAt.IsZero() && n.CreatedAt.After(cutoff) {
			continue
		}
		subject := n.Subject
		if subject == "" {
			subject = "Campus events notification"
		}
		errSend := s.mailer.Send(ctx, smtp.Message{To: n.UserEmail, Subject: subject, Body: n.Message})
		s.finish(ctx, &n, errSend, true)
		if errSend != nil {
			report.Failed++
			continue
		}
		report.Sent++
		s.markReminded(ctx, n)
	}

	if report.Sent+report.Failed > 0 {
		s.logger.Infof("Flushed pending notifications (sent=%d, failed=%d)", report.Sent, report.Failed)
	}
	return report, nil
}

func (s *NotifyService) markReminded(ctx context.Context, n entity.Notification) {
	lead, ok := entity.ReminderLead(n.Kind)
	if !ok || s.marker == nil || n.RegistrationID == "" {
		return
	}
	if err := s.marker.MarkReminded(ctx, n.RegistrationID, lead); err != nil {
		s.logger.Errorf("failed to mark flushed reminder (registration_id=%s, lead=%s): %v", n.RegistrationID, entity.FormatLead(lead), err)
	}
}

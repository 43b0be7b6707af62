package records

import (
	"context"
	"time"

	"github.com/campus-events/event-aggregator/internal/adapters/database/tables"
	"github.com/campus-events/event-aggregator/internal/domain/entity"
)

var notificationCodec = codec[entity.Notification]{
	table:  tables.Notifications,
	id:     func(n entity.Notification) string { return n.ID },
	decode: NotificationFromRow,
	encode: NotificationToRow,
}

func NotificationFromRow(r tables.Row) entity.Notification {
	return entity.Notification{
		ID:             r.Get("Notification_ID"),
		EventID:        r.Get("Event_ID"),
		RegistrationID: r.Get("Registration_ID"),
		UserEmail:      r.Get("User_Email"),
		Kind:           entity.NotificationKind(r.Get("Kind")),
		Subject:        r.Get("Subject"),
		Message:        r.Get("Message"),
		Status:         entity.ParseNotificationStatus(r.Get("Status")),
		CreatedAt:      parseTimestamp(r.Get("Created_Date")),
		SentAt:         parseTimestamp(r.Get("Sent_Date")),
	}
}

func NotificationToRow(n entity.Notification) tables.Row {
	row := tables.Row{
		"Notification_ID": n.ID,
		"Event_ID":        n.EventID,
		"Registration_ID": n.RegistrationID,
		"User_Email":      n.UserEmail,
		"Kind":            string(n.Kind),
		"Subject":         n.Subject,
		"Message":         n.Message,
		"Status":          string(n.Status),
		"Created_Date":    formatTimestamp(n.CreatedAt),
		"Sent_Date":       "",
	}
	if n.Status == entity.NotificationStatusSent {
		row["Sent_Date"] = formatTimestamp(n.SentAt)
	}
	return row
}

type NotificationStorage struct {
	store tables.Store
}

func NewNotificationStorage(store tables.Store) *NotificationStorage {
	return &NotificationStorage{
		store: store,
	}
}

func (s *NotificationStorage) List(ctx context.Context) ([]entity.Notification, error) {
	return notificationCodec.list(ctx, s.store)
}

func (s *NotificationStorage) Create(ctx context.Context, n *entity.Notification) error {
	return tables.AppendRow(ctx, s.store, tables.Notifications, NotificationToRow(*n))
}

// SetStatus moves a notification to sent or failed. sentAt is stored only
// for sent notifications.
func (s *NotificationStorage) SetStatus(ctx context.Context, id string, status entity.NotificationStatus, sentAt time.Time) error {
	_, err := tables.UpdateRows(ctx, s.store, tables.Notifications,
		func(r tables.Row) bool { return r.Get("Notification_ID") == id },
		func(r tables.Row) {
			r["Status"] = string(status)
			if status == entity.NotificationStatusSent {
				r["Sent_Date"] = formatTimestamp(sentAt)
			} else {
				r["Sent_Date"] = ""
			}
		},
	)
	return err
}

func (s *NotificationStorage) Pending(ctx context.Context) ([]entity.Notification, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var pending []entity.Notification
	for _, n := range all {
		if n.Status == entity.NotificationStatusPending {
			pending = append(pending, n)
		}
	}
	return pending, nil
}

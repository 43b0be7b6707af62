package entity

import (
	"fmt"
	"strings"
	"time"
)

const reminderKindPrefix = "reminder_"

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// ParseNotificationStatus reads a logged status. Older logs wrote the
// delivered reminder ("24h Reminder") in place of "sent".
func ParseNotificationStatus(s string) NotificationStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pending":
		return NotificationStatusPending
	case "failed":
		return NotificationStatusFailed
	default:
		return NotificationStatusSent
	}
}

type NotificationKind string

const (
	NotificationKindConfirmation NotificationKind = "confirmation"
	NotificationKindCancellation NotificationKind = "cancellation"
	NotificationKindEventUpdate  NotificationKind = "event_update"
)

// ReminderKind is the kind of a reminder sent lead before the event start ("reminder_24h").
func ReminderKind(lead time.Duration) NotificationKind {
	return NotificationKind(reminderKindPrefix + FormatLead(lead))
}

// ReminderLead is the inverse of ReminderKind.
func ReminderLead(kind NotificationKind) (time.Duration, bool) {
	s, ok := strings.CutPrefix(string(kind), reminderKindPrefix)
	if !ok {
		return 0, false
	}
	lead, err := time.ParseDuration(s)
	if err != nil || lead <= 0 {
		return 0, false
	}
	return lead, true
}

// FormatLead renders a lead time the way it is stored: whole hours as "24h".
func FormatLead(lead time.Duration) string {
	if lead%time.Hour == 0 {
		return fmt.Sprintf("%dh", lead/time.Hour)
	}
	return lead.String()
}

// Notification is a row of the append-only notification log
type Notification struct {
	ID      string
	EventID string
	// RegistrationID is set for confirmations and reminders.
	RegistrationID string
	UserEmail      string
	Kind           NotificationKind
	Subject        string
	Message        string
	Status         NotificationStatus
	CreatedAt      time.Time
	SentAt         time.Time
}

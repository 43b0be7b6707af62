package entity

import (
	"sort"
	"strings"
	"time"
)

type RegistrationStatus string

const (
	RegistrationStatusRegistered RegistrationStatus = "registered"
	RegistrationStatusActive     RegistrationStatus = "active"
	RegistrationStatusCancelled  RegistrationStatus = "cancelled"
)

func ParseRegistrationStatus(s string) RegistrationStatus {
	return RegistrationStatus(strings.ToLower(strings.TrimSpace(s)))
}

// IsActive is true for "registered" and the legacy "active" status.
func (s RegistrationStatus) IsActive() bool {
	return s == RegistrationStatusRegistered || s == RegistrationStatusActive
}

type Registration struct {
	ID           string
	EventID      string
	EventTitle   string
	UserEmail    string
	UserName     string
	StudentID    string
	Department   string
	Year         string
	RegisteredAt time.Time
	Status       RegistrationStatus
	CancelledAt  time.Time
	// RemindersSent holds the lead times a reminder was already delivered for.
	RemindersSent []time.Duration
}

func (r *Registration) IsActive() bool {
	return r.Status.IsActive()
}

func (r *Registration) Reminded(lead time.Duration) bool {
	for _, l := range r.RemindersSent {
		if l == lead {
			return true
		}
	}
	return false
}

func (r *Registration) MarkReminded(lead time.Duration) {
	if r.Reminded(lead) {
		return
	}
	r.RemindersSent = append(r.RemindersSent, lead)
	sort.Slice(r.RemindersSent, func(i, j int) bool { return r.RemindersSent[i] < r.RemindersSent[j] })
}

// SameUser compares emails case-insensitively.
func SameUser(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

package entity

import (
	"strings"
	"time"
)

type EventStatus string

const (
	EventStatusActive    EventStatus = "active"
	EventStatusCancelled EventStatus = "cancelled"
)

// ParseEventStatus accepts the spellings found in older spreadsheets ("Active").
func ParseEventStatus(s string) EventStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cancelled", "canceled":
		return EventStatusCancelled
	default:
		return EventStatusActive
	}
}

type Event struct {
	ID               string
	Title            string
	Category         string
	Date             string // YYYY-MM-DD as entered by the organizer
	Time             string // HH:MM
	StartTime        time.Time
	Venue            string
	Description      string
	Organizer        string
	OrganizerContact string
	Capacity         int
	RegisteredCount  int
	PosterPath       string
	CreatedAt        time.Time
	CreatedBy        string
	Status           EventStatus
}

// HasStart reports whether the event date could be parsed.
func (e *Event) HasStart() bool {
	return !e.StartTime.IsZero()
}

func (e *Event) IsActive() bool {
	return e.Status == EventStatusActive
}

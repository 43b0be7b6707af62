package dto

import "time"

// Session identifies who is acting and the event they are looking at.
type Session struct {
	Token           string    `json:"token"`
	UserEmail       string    `json:"user_email"`
	UserName        string    `json:"user_name"`
	IsAdmin         bool      `json:"is_admin"`
	SelectedEventID string    `json:"selected_event_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

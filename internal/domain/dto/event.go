package dto

import "github.com/campus-events/event-aggregator/internal/domain/entity"

// EventInput is what an admin submits when creating or editing an event.
type EventInput struct {
	Title            string `validate:"required,min=3,max=120"`
	Category         string `validate:"required,max=60"`
	Date             string `validate:"required,eventdate"`
	Time             string `validate:"required,eventtime"`
	Venue            string `validate:"required,max=150"`
	Description      string `validate:"max=2000"`
	Organizer        string `validate:"required,max=120"`
	OrganizerContact string `validate:"max=120"`
	Capacity         int    `validate:"gt=0"`
	PosterPath       string
}

// UserEvent is an event a user holds an active registration for.
type UserEvent struct {
	Event        entity.Event
	Registration entity.Registration
}

func NewUserEventFromEntity(event entity.Event, registration entity.Registration) UserEvent {
	return UserEvent{
		Event:        event,
		Registration: registration,
	}
}

package dto

import "github.com/campus-events/event-aggregator/internal/domain/entity"

type RegistrationResult struct {
	Registration entity.Registration
	Event        entity.Event
	Message      string
	// Notified is false when the confirmation could not be delivered.
	Notified bool
}

package dto

import "github.com/campus-events/event-aggregator/internal/domain/entity"

type FeedbackInput struct {
	Text   string `validate:"max=2000"`
	Rating int    `validate:"min=1,max=5"`
}

// FeedbackSummary is the feedback of one event with its average rating.
type FeedbackSummary struct {
	EventID string
	Entries []entity.Feedback
	Average float64
}

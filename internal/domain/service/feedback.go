package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/campus-events/event-aggregator/internal/domain/common/errorz"
	"github.com/campus-events/event-aggregator/internal/domain/dto"
	"github.com/campus-events/event-aggregator/internal/domain/entity"
	"github.com/campus-events/event-aggregator/pkg/logger/types"
)

type FeedbackStorage interface {
	GetByEventID(ctx context.Context, eventID string) ([]entity.Feedback, error)
	Create(ctx context.Context, f *entity.Feedback) error
}

type feedbackEventStorage interface {
	Get(ctx context.Context, id string) (*entity.Event, error)
}

type feedbackRegistrationStorage interface {
	GetByUser(ctx context.Context, email string) ([]entity.Registration, error)
}

type FeedbackService struct {
	logger *types.Logger

	storage             FeedbackStorage
	eventStorage        feedbackEventStorage
	registrationStorage feedbackRegistrationStorage
	validate            *validator.Validate

	now func() time.Time
}

func NewFeedbackService(
	logger *types.Logger,
	storage FeedbackStorage,
	eventStorage feedbackEventStorage,
	registrationStorage feedbackRegistrationStorage,
	validate *validator.Validate,
) *FeedbackService {
	return &FeedbackService{
		logger: logger,

		storage:             storage,
		eventStorage:        eventStorage,
		registrationStorage: registrationStorage,
		validate:            validate,

		now: time.Now,
	}
}

func (s *FeedbackService) WithClock(now func() time.Time) *FeedbackService {
	s.now = now
	return s
}

// Submit stores feedback from the session user. Only users holding an active
// registration for the event may leave feedback.
func (s *FeedbackService) Submit(ctx context.Context, session dto.Session, eventID string, input dto.FeedbackInput) (entity.Feedback, error) {
	if session.UserEmail == "" {
		return entity.Feedback{}, errorz.ErrSessionNotFound
	}
	input.Text = strings.TrimSpace(input.Text)
	if err := s.validate.Struct(input); err != nil {
		return entity.Feedback{}, fmt.Errorf("%w: %v", errorz.ErrInvalidInput, err)
	}

	event, err := s.eventStorage.Get(ctx, eventID)
	if err != nil {
		return entity.Feedback{}, err
	}

	regs, err := s.registrationStorage.GetByUser(ctx, session.UserEmail)
	if err != nil {
		return entity.Feedback{}, err
	}
	registered := false
	for i := range regs {
		if regs[i].EventID == eventID && regs[i].IsActive() {
			registered = true
			break
		}
	}
	if !registered {
		return entity.Feedback{}, errorz.ErrRegistrationNotFound
	}

	f := entity.Feedback{
		ID:         newID(),
		EventID:    event.ID,
		EventTitle: event.Title,
		UserEmail:  session.UserEmail,
		UserName:   session.UserName,
		Text:       input.Text,
		Rating:     input.Rating,
		CreatedAt:  s.now(),
	}
	if err = s.storage.Create(ctx, &f); err != nil {
		return entity.Feedback{}, err
	}

	s.logger.Infof("Feedback saved (event_id=%s, user=%s, rating=%d)", event.ID, session.UserEmail, f.Rating)
	return f, nil
}

func (s *FeedbackService) EventFeedback(ctx context.Context, session dto.Session, eventID string) (dto.FeedbackSummary, error) {
	if !session.IsAdmin {
		return dto.FeedbackSummary{}, errorz.ErrForbidden
	}
	if _, err := s.eventStorage.Get(ctx, eventID); err != nil {
		return dto.FeedbackSummary{}, err
	}

	entries, err := s.storage.GetByEventID(ctx, eventID)
	if err != nil {
		return dto.FeedbackSummary{}, err
	}

	summary := dto.FeedbackSummary{EventID: eventID, Entries: entries}
	rated := 0
	total := 0
	for _, f := range entries {
		if f.Rating < 1 {
			continue
		}
		rated++
		total += f.Rating
	}
	if rated > 0 {
		summary.Average = float64(total) / float64(rated)
	}
	return summary, nil
}

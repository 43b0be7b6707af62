package records

import (
	"context"
	"strconv"

	"github.com/campus-events/event-aggregator/internal/adapters/database/tables"
	"github.com/campus-events/event-aggregator/internal/domain/entity"
)

var feedbackCodec = codec[entity.Feedback]{
	table:  tables.Feedbacks,
	id:     func(f entity.Feedback) string { return f.ID },
	decode: FeedbackFromRow,
	encode: FeedbackToRow,
}

func FeedbackFromRow(r tables.Row) entity.Feedback {
	return entity.Feedback{
		ID:         r.Get("Feedback_ID"),
		EventID:    r.Get("Event_ID"),
		EventTitle: r.Get("Event_Title"),
		UserEmail:  r.Get("User_Email"),
		UserName:   r.Get("User_Name"),
		Text:       r.Get("Feedback"),
		Rating:     parseInt(r.Get("Rating")),
		CreatedAt:  parseTimestamp(r.Get("Date")),
	}
}

func FeedbackToRow(f entity.Feedback) tables.Row {
	return tables.Row{
		"Feedback_ID": f.ID,
		"Event_ID":    f.EventID,
		"Event_Title": f.EventTitle,
		"User_Email":  f.UserEmail,
		"User_Name":   f.UserName,
		"Feedback":    f.Text,
		"Rating":      strconv.Itoa(f.Rating),
		"Date":        formatTimestamp(f.CreatedAt),
	}
}

type FeedbackStorage struct {
	store tables.Store
}

func NewFeedbackStorage(store tables.Store) *FeedbackStorage {
	return &FeedbackStorage{
		store: store,
	}
}

func (s *FeedbackStorage) List(ctx context.Context) ([]entity.Feedback, error) {
	return feedbackCodec.list(ctx, s.store)
}

func (s *FeedbackStorage) GetByEventID(ctx context.Context, eventID string) ([]entity.Feedback, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []entity.Feedback
	for _, f := range all {
		if f.EventID == eventID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *FeedbackStorage) Create(ctx context.Context, f *entity.Feedback) error {
	return tables.AppendRow(ctx, s.store, tables.Feedbacks, FeedbackToRow(*f))
}

package records

import (
	"context"
	"strings"
	"time"

	"github.com/campus-events/event-aggregator/internal/adapters/database/tables"
	"github.com/campus-events/event-aggregator/internal/domain/common/errorz"
	"github.com/campus-events/event-aggregator/internal/domain/entity"
)

var registrationCodec = codec[entity.Registration]{
	table:  tables.Registrations,
	id:     func(r entity.Registration) string { return r.ID },
	decode: RegistrationFromRow,
	encode: RegistrationToRow,
}

func RegistrationFromRow(r tables.Row) entity.Registration {
	reg := entity.Registration{
		ID:           r.Get("Registration_ID"),
		EventID:      r.Get("Event_ID"),
		EventTitle:   r.Get("Event_Title"),
		UserEmail:    r.Get("User_Email"),
		UserName:     r.Get("User_Name"),
		StudentID:    r.Get("Student_ID"),
		Department:   r.Get("Department"),
		Year:         r.Get("Year"),
		RegisteredAt: parseTimestamp(r.Get("Registration_Date")),
		Status:       entity.ParseRegistrationStatus(r.Get("Status")),
		CancelledAt:  parseTimestamp(r.Get("Cancelled_Date")),
	}
	if reg.Status == "" {
		reg.Status = entity.RegistrationStatusRegistered
	}
	reg.RemindersSent = ParseLeads(r.Get("Reminders_Sent"))
	// sheets written before per lead flags only had the day-before flag
	if len(reg.RemindersSent) == 0 && parseBool(r.Get("Notification_Sent")) {
		reg.RemindersSent = []time.Duration{24 * time.Hour}
	}
	return reg
}

func RegistrationToRow(reg entity.Registration) tables.Row {
	row := tables.Row{
		"Registration_ID":   reg.ID,
		"Event_ID":          reg.EventID,
		"Event_Title":       reg.EventTitle,
		"User_Email":        reg.UserEmail,
		"User_Name":         reg.UserName,
		"Student_ID":        reg.StudentID,
		"Department":        reg.Department,
		"Year":              reg.Year,
		"Registration_Date": formatTimestamp(reg.RegisteredAt),
		"Reminders_Sent":    FormatLeads(reg.RemindersSent),
		"Status":            string(reg.Status),
		"Cancelled_Date":    "",
	}
	if reg.Status == entity.RegistrationStatusCancelled {
		row["Cancelled_Date"] = formatTimestamp(reg.CancelledAt)
	}
	return row
}

// FormatLeads renders reminder flags as "24h,48h".
func FormatLeads(leads []time.Duration) string {
	parts := make([]string, 0, len(leads))
	for _, l := range leads {
		parts = append(parts, entity.FormatLead(l))
	}
	return strings.Join(parts, ",")
}

// ParseLeads is the inverse of FormatLeads. Unknown entries are dropped.
func ParseLeads(s string) []time.Duration {
	var leads []time.Duration
	for _, part := range splitList(s) {
		d, err := time.ParseDuration(strings.ToLower(part))
		if err != nil || d <= 0 {
			continue
		}
		leads = append(leads, d)
	}
	return leads
}

type RegistrationStorage struct {
	store tables.Store
}

func NewRegistrationStorage(store tables.Store) *RegistrationStorage {
	return &RegistrationStorage{
		store: store,
	}
}

func (s *RegistrationStorage) List(ctx context.Context) ([]entity.Registration, error) {
	return registrationCodec.list(ctx, s.store)
}

func (s *RegistrationStorage) GetByEventID(ctx context.Context, eventID string) ([]entity.Registration, error) {
	return s.filter(ctx, func(r *entity.Registration) bool { return r.EventID == eventID })
}

func (s *RegistrationStorage) GetByUser(ctx context.Context, email string) ([]entity.Registration, error) {
	return s.filter(ctx, func(r *entity.Registration) bool { return entity.SameUser(r.UserEmail, email) })
}

// CountActive counts the active registrations of an event.
func (s *RegistrationStorage) CountActive(ctx context.Context, eventID string) (int, error) {
	regs, err := s.GetByEventID(ctx, eventID)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range regs {
		if regs[i].IsActive() {
			n++
		}
	}
	return n, nil
}

// Mutate runs fn over the whole registrations table under its lock.
func (s *RegistrationStorage) Mutate(ctx context.Context, fn func(regs []entity.Registration) ([]entity.Registration, error)) error {
	return registrationCodec.mutate(ctx, s.store, fn)
}

// MarkReminded sets the reminder flag for lead on one registration.
func (s *RegistrationStorage) MarkReminded(ctx context.Context, id string, lead time.Duration) error {
	return s.Mutate(ctx, func(regs []entity.Registration) ([]entity.Registration, error) {
		for i := range regs {
			if regs[i].ID == id {
				regs[i].MarkReminded(lead)
				return regs, nil
			}
		}
		return nil, errorz.ErrRegistrationNotFound
	})
}

// DeleteByEventID physically removes the registrations of a deleted event.
func (s *RegistrationStorage) DeleteByEventID(ctx context.Context, eventID string) (int, error) {
	return tables.DeleteRows(ctx, s.store, tables.Registrations, func(r tables.Row) bool {
		return r.Get("Event_ID") == eventID
	})
}

func (s *RegistrationStorage) filter(ctx context.Context, keep func(*entity.Registration) bool) ([]entity.Registration, error) {
	regs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := regs[:0]
	for i := range regs {
		if keep(&regs[i]) {
			out = append(out, regs[i])
		}
	}
	return out, nil
}

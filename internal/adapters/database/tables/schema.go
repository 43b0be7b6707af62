package tables

import (
	"context"
	"errors"
	"sort"
)

const (
	Users         = "Users"
	Events        = "Events"
	Registrations = "Event_Registrations"
	Notifications = "Notifications"
	Feedbacks     = "Feedbacks"
)

// Schema maps a table name to its ordered columns.
type Schema map[string][]string

// DefaultSchema is the layout of the event aggregator spreadsheets.
var DefaultSchema = Schema{
	Users: {
		"ID", "Name", "Email", "Student_ID", "Department", "Year",
		"Interests", "Password_Hash", "Is_Admin", "Created_Date",
	},
	Events: {
		"Event_ID", "Title", "Category", "Date", "Time", "Venue",
		"Description", "Organizer", "Organizer_Contact", "Capacity",
		"Registered_Count", "Poster_Path", "Created_Date", "Created_By", "Status",
	},
	Registrations: {
		"Registration_ID", "Event_ID", "Event_Title", "User_Email",
		"User_Name", "Student_ID", "Department", "Year",
		"Registration_Date", "Reminders_Sent", "Status", "Cancelled_Date",
	},
	Notifications: {
		"Notification_ID", "Event_ID", "Registration_ID", "User_Email", "Kind",
		"Subject", "Message", "Created_Date", "Sent_Date", "Status",
	},
	Feedbacks: {
		"Feedback_ID", "Event_ID", "Event_Title", "User_Email",
		"User_Name", "Feedback", "Rating", "Date",
	},
}

// Names returns the table names in a stable order.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Columns returns the header of a table: the schema columns first, then any
// extra columns present in rows, sorted.
func (s Schema) Columns(name string, rows []Row) []string {
	known := s[name]
	seen := make(map[string]struct{}, len(known))
	cols := make([]string, 0, len(known))
	for _, c := range known {
		seen[c] = struct{}{}
		cols = append(cols, c)
	}
	var extra []string
	for _, r := range rows {
		for c := range r {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	return append(cols, extra...)
}

// Migrate creates every table of the schema that does not exist yet and
// fills in columns missing from existing rows. Existing data is kept.
func Migrate(ctx context.Context, s Store, schema Schema) error {
	for _, name := range schema.Names() {
		columns := schema[name]
		err := s.UpdateTable(ctx, name, func(rows []Row) ([]Row, error) {
			changed := len(rows) == 0
			for _, r := range rows {
				for _, c := range columns {
					if _, ok := r[c]; !ok {
						r[c] = ""
						changed = true
					}
				}
			}
			if !changed {
				return nil, errNothingChanged
			}
			return rows, nil
		})
		if err != nil && !errors.Is(err, errNothingChanged) {
			return err
		}
	}
	return nil
}

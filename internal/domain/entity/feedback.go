package entity

import "time"

type Feedback struct {
	ID         string
	EventID    string
	EventTitle string
	UserEmail  string
	UserName   string
	Text       string
	// Rating is 1 to 5 stars.
	Rating    int
	CreatedAt time.Time
}

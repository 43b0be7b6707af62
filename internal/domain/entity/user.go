package entity

import "time"

type User struct {
	ID           string
	Name         string
	Email        string
	StudentID    string
	Department   string
	Year         string
	Interests    []string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

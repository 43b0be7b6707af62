package errorz

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEventNotFound        = errors.New("event not found")
	ErrAlreadyRegistered    = errors.New("already registered for this event")
	ErrEventFull            = errors.New("event is full")
	ErrRegistrationNotFound = errors.New("no registration found")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrDispatchFailed       = errors.New("notification dispatch failed")

	ErrEventCancelled          = errors.New("event is cancelled")
	ErrCapacityBelowRegistered = errors.New("capacity is below the number of registered users")
	ErrUserExists              = errors.New("user with this email already exists")
	ErrStudentIDExists         = errors.New("student id already registered")
	ErrInvalidCredentials      = errors.New("invalid email or password")
	ErrSessionNotFound         = errors.New("session not found")
	ErrForbidden               = errors.New("forbidden")
	ErrInvalidInput            = errors.New("invalid input")
	ErrLockNotAcquired         = errors.New("lock not acquired")
)

package location

import (
	"sync"
	"time"
)

var (
	mu  sync.RWMutex
	loc = time.Local
)

// Location returns the time zone event dates and times are interpreted in.
func Location() *time.Location {
	mu.RLock()
	defer mu.RUnlock()
	return loc
}

// Set replaces the time zone used by Location. A nil location is ignored.
func Set(l *time.Location) {
	if l == nil {
		return
	}
	mu.Lock()
	loc = l
	mu.Unlock()
}

// Load sets the time zone by IANA name ("Asia/Kolkata", "Europe/Moscow", ...).
func Load(name string) error {
	if name == "" {
		return nil
	}
	l, err := time.LoadLocation(name)
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

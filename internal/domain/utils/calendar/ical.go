package calendar

import (
	"bytes"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/campus-events/event-aggregator/internal/domain/entity"
)

// DefaultDuration is used as the length of events, which have no end time.
const DefaultDuration = 2 * time.Hour

// ExportEventsToICS converts events into an iCalendar (.ics) document. Every
// event gets a display alarm for each of the reminder lead times. Events
// without a parseable start are left out.
func ExportEventsToICS(events []entity.Event, leads []time.Duration) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//Campus Event Aggregator//EN")
	cal.SetVersion("2.0")
	cal.SetCalscale("GREGORIAN")

	now := time.Now()
	for _, event := range events {
		if !event.HasStart() {
			continue
		}
		e := cal.AddEvent(fmt.Sprintf("%s@campus-events", event.ID))

		// DTSTAMP is required by most mobile clients
		e.SetDtStampTime(now)
		if !event.CreatedAt.IsZero() {
			e.SetCreatedTime(event.CreatedAt)
		}
		e.SetModifiedAt(now)
		e.SetStartAt(event.StartTime)
		e.SetEndAt(event.StartTime.Add(DefaultDuration))

		e.SetSummary(event.Title)
		e.SetDescription(event.Description)
		e.SetLocation(event.Venue)
		if event.Category != "" {
			e.AddCategory(event.Category)
		}
		if event.Organizer != "" {
			e.SetOrganizer(event.Organizer)
		}

		if event.IsActive() {
			e.SetStatus(ics.ObjectStatusConfirmed)
		} else {
			e.SetStatus(ics.ObjectStatusCancelled)
		}
		e.SetTimeTransparency(ics.TransparencyOpaque)
		e.SetClass(ics.ClassificationPublic)
		e.SetSequence(0)

		for _, lead := range leads {
			alarm := e.AddAlarm()
			alarm.SetAction(ics.ActionDisplay)
			alarm.SetTrigger(trigger(lead))
			alarm.SetDescription(fmt.Sprintf("Reminder: %s starts in %s", event.Title, entity.FormatLead(lead)))
		}
	}

	var buf bytes.Buffer
	if err := cal.SerializeTo(&buf); err != nil {
		return nil, fmt.Errorf("error serializing calendar: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportEventToICS converts a single event.
func ExportEventToICS(event entity.Event, leads []time.Duration) ([]byte, error) {
	return ExportEventsToICS([]entity.Event{event}, leads)
}

// trigger renders a negative duration like "-PT24H".
func trigger(lead time.Duration) string {
	minutes := int(lead / time.Minute)
	if minutes%60 == 0 {
		return fmt.Sprintf("-PT%dH", minutes/60)
	}
	return fmt.Sprintf("-PT%dM", minutes)
}

package service

import (
	"fmt"
	"time"

	"github.com/campus-events/event-aggregator/internal/domain/entity"
	"github.com/campus-events/event-aggregator/internal/domain/utils/calendar"
	"github.com/campus-events/event-aggregator/pkg/logger/types"
	qr "github.com/campus-events/event-aggregator/pkg/qrcode"
	"github.com/campus-events/event-aggregator/pkg/smtp"
)

// TicketService renders the attachments of a registration confirmation: the
// entry ticket with its QR code and a calendar file.
type TicketService struct {
	logger *types.Logger
	qrCFG  qr.Config
	leads  []time.Duration
}

func NewTicketService(logger *types.Logger, qrCFG qr.Config, leads []time.Duration) *TicketService {
	return &TicketService{
		logger: logger,
		qrCFG:  qrCFG,
		leads:  leads,
	}
}

// Attachments never fails: an attachment that cannot be rendered is left out.
func (s *TicketService) Attachments(event entity.Event, registration entity.Registration) []smtp.Attachment {
	var attachments []smtp.Attachment

	png, err := s.qrCFG.Generate(qr.Ticket{
		RegistrationID: registration.ID,
		EventID:        event.ID,
		UserEmail:      registration.UserEmail,
		Caption:        []string{event.Title, fmt.Sprintf("%s %s", event.Date, event.Time)},
	})
	if err != nil {
		s.logger.Errorf("failed to render ticket (registration_id=%s): %v", registration.ID, err)
	} else {
		attachments = append(attachments, smtp.Attachment{
			Name:        fmt.Sprintf("ticket-%s.png", registration.ID),
			ContentType: "image/png",
			Data:        png,
		})
	}

	if event.HasStart() {
		ics, errICS := calendar.ExportEventToICS(event, s.leads)
		if errICS != nil {
			s.logger.Errorf("failed to render calendar (event_id=%s): %v", event.ID, errICS)
		} else {
			attachments = append(attachments, smtp.Attachment{
				Name:        fmt.Sprintf("%s.ics", event.ID),
				ContentType: "text/calendar",
				Data:        ics,
			})
		}
	}

	return attachments
}

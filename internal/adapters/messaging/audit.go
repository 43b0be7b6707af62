package messaging

import (
	"context"

	"github.com/campus-events/event-aggregator/pkg/logger/types"
)

// AddAudit logs every domain event the service publishes.
func (b *Bus) AddAudit(logger *types.Logger) {
	for _, topic := range Topics {
		b.Handle("audit_"+topic, topic, func(_ context.Context, e Event) error {
			logger.Infof("%s (event_id=%s, registration_id=%s, user=%s, at=%s)",
				e.Type, e.EventID, e.RegistrationID, e.UserEmail, e.OccurredAt.Format("2006-01-02 15:04:05"))
			return nil
		})
	}
}

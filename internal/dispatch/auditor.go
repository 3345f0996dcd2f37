package dispatch

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/strivehq/hookgate/internal/models"
)

type LogStore interface {
	CreateDeliveryLog(ctx context.Context, entry *models.DeliveryLog) error
}

// Auditor appends delivery log entries. A failed write never blocks or
// fails the dispatch path; it is logged for operational monitoring and
// swallowed.
type Auditor struct {
	store LogStore
	log   zerolog.Logger
}

func NewAuditor(store LogStore, log zerolog.Logger) *Auditor {
	return &Auditor{store: store, log: log}
}

func (a *Auditor) Record(ctx context.Context, entry *models.DeliveryLog) {
	if err := a.store.CreateDeliveryLog(ctx, entry); err != nil {
		a.log.Error().Err(err).
			Str("subscription_id", entry.SubscriptionID).
			Str("event_type", entry.EventType).
			Msg("failed to write delivery log entry")
	}
}

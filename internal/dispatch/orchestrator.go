package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/strivehq/hookgate/internal/delivery"
	"github.com/strivehq/hookgate/internal/models"
)

// SubscriptionResult is the per-subscription outcome included in a
// dispatch summary.
type SubscriptionResult struct {
	SubscriptionID string `json:"subscription_id"`
	Success        bool   `json:"success"`
	StatusCode     int    `json:"status_code,omitempty"`
	Attempts       int    `json:"attempts"`
	Error          string `json:"error,omitempty"`
}

// Summary is what the event producer gets back: counts plus per-
// subscription detail. Zero deliveries succeeding is a valid outcome,
// distinct from the dispatcher itself erroring.
type Summary struct {
	EventType string               `json:"event_type"`
	Total     int                  `json:"total"`
	Delivered int                  `json:"delivered"`
	Failed    int                  `json:"failed"`
	Results   []SubscriptionResult `json:"results"`
}

type Store interface {
	ListActiveSubscriptions(ctx context.Context, eventType, userID string) ([]models.Subscription, error)
	RecordDeliverySuccess(ctx context.Context, subscriptionID string, at time.Time) error
	RecordDeliveryFailure(ctx context.Context, subscriptionID string, at time.Time) error
}

// Orchestrator resolves which subscriptions care about an event, fans
// delivery out concurrently, audits each final outcome, and updates
// subscription health. One subscription's failure or timeout never
// prevents the others from completing or being logged.
type Orchestrator struct {
	store   Store
	engine  *delivery.Engine
	auditor *Auditor
	log     zerolog.Logger
}

func NewOrchestrator(store Store, engine *delivery.Engine, auditor *Auditor, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{store: store, engine: engine, auditor: auditor, log: log}
}

// Dispatch fans event out to every active subscription for its type,
// optionally filtered to subscriptions owned by event.UserID. It waits
// for every delivery to settle before returning.
func (o *Orchestrator) Dispatch(ctx context.Context, event *models.Event) (*Summary, error) {
	subs, err := o.store.ListActiveSubscriptions(ctx, event.Type, event.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolving subscriptions: %w", err)
	}

	summary := &Summary{
		EventType: event.Type,
		Total:     len(subs),
		Results:   []SubscriptionResult{},
	}
	if len(subs) == 0 {
		return summary, nil
	}

	results := make([]SubscriptionResult, len(subs))
	var wg conc.WaitGroup
	for i, sub := range subs {
		i, sub := i, sub
		wg.Go(func() {
			results[i] = o.deliverOne(ctx, &sub, event)
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		o.log.Error().Str("panic", r.String()).Str("event_type", event.Type).Msg("panic during webhook fan-out")
	}

	for _, res := range results {
		if res.Success {
			summary.Delivered++
		} else {
			summary.Failed++
		}
	}
	summary.Results = results

	o.log.Info().
		Str("event_type", event.Type).
		Int("total", summary.Total).
		Int("delivered", summary.Delivered).
		Int("failed", summary.Failed).
		Msg("event dispatched")

	return summary, nil
}

func (o *Orchestrator) deliverOne(ctx context.Context, sub *models.Subscription, event *models.Event) SubscriptionResult {
	res := o.engine.Deliver(ctx, sub, event.Type, event.Payload)
	now := time.Now().UTC()

	o.auditor.Record(ctx, &models.DeliveryLog{
		ID:             models.NewID("log"),
		SubscriptionID: sub.ID,
		EventType:      event.Type,
		Payload:        event.Payload,
		StatusCode:     res.StatusCode,
		Success:        res.Success,
		Error:          res.Error,
		Attempts:       res.Attempts,
		DurationMs:     res.DurationMs,
		CreatedAt:      now,
	})

	if res.Success {
		if err := o.store.RecordDeliverySuccess(ctx, sub.ID, now); err != nil {
			o.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("failed to record delivery success")
		}
	} else {
		if err := o.store.RecordDeliveryFailure(ctx, sub.ID, now); err != nil {
			o.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("failed to record delivery failure")
		}
		o.log.Warn().
			Str("subscription_id", sub.ID).
			Str("event_type", event.Type).
			Int("attempts", res.Attempts).
			Str("error", res.Error).
			Msg("delivery failed after retries")
	}

	return SubscriptionResult{
		SubscriptionID: sub.ID,
		Success:        res.Success,
		StatusCode:     res.StatusCode,
		Attempts:       res.Attempts,
		Error:          res.Error,
	}
}

package models

import (
	"encoding/json"
	"time"
)

// DeliveryLog is one append-only audit record per (event, subscription)
// pair per dispatch: the final outcome after all retries, not one row per
// attempt. Attempts records how many attempts the final outcome took.
type DeliveryLog struct {
	ID             string          `json:"id"`
	SubscriptionID string          `json:"subscription_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	StatusCode     int             `json:"status_code,omitempty"`
	Success        bool            `json:"success"`
	Error          string          `json:"error,omitempty"`
	Attempts       int             `json:"attempts"`
	DurationMs     int64           `json:"duration_ms"`
	CreatedAt      time.Time       `json:"created_at"`
}

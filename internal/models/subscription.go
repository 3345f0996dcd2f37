package models

import "time"

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionDisabled SubscriptionStatus = "disabled"
)

// DisableThreshold is the number of consecutive failed deliveries after
// which a subscription is automatically disabled.
const DisableThreshold = 10

// Subscription is a third party's registered interest in a set of event
// types: a destination URL plus the secret used to sign deliveries to it.
type Subscription struct {
	ID              string             `json:"id"`
	UserID          string             `json:"user_id"`
	URL             string             `json:"url"`
	EventTypes      []string           `json:"event_types"`
	Secret          string             `json:"secret,omitempty"`
	Status          SubscriptionStatus `json:"status"`
	FailureCount    int                `json:"failure_count"`
	LastTriggeredAt *time.Time         `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

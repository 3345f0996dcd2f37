package models

import "encoding/json"

// Event is an ephemeral unit of work handed to the dispatcher. It is not
// persisted; its durable trace is the delivery log. Payload carries the
// exact bytes that will be signed and sent on the wire.
type Event struct {
	Type    string          `json:"event_type"`
	UserID  string          `json:"user_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
	Source  string          `json:"source,omitempty"`
}

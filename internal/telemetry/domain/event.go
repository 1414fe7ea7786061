package domain

import (
	"encoding/json"
	"time"
)

// Event is a single telemetry record for an auth-flow occurrence. Events are
// serialized as JSON on the wire (Kafka) and the field names below are the
// contract with downstream consumers.
type Event struct {
	ID        int64           `json:"-"` // assigned on persistence
	OrgID     string          `json:"orgId"`
	UserID    string          `json:"userId,omitempty"`
	EventType string          `json:"eventType"`
	Source    string          `json:"source"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

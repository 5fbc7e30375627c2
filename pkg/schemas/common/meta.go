package common

import "time"

type Meta struct {
	// Unique message ID
	ID string `json:"id"`
	// Trace / request correlation ID
	CorrelationID string `json:"correlation_id,omitempty"`
	// Emitting service, e.g. condo
	Producer string `json:"producer,omitempty"`
	// Timestamp when the message was emitted
	Time time.Time `json:"time"`
	// Event name and version, e.g. entity.changed.v1
	Type string `json:"type"`
}

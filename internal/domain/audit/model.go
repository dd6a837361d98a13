// Package audit keeps the result mutation trail: one entry per result
// write or verification, carrying the previous and new raw payload.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	ActionSubmit = "submit"
	ActionVerify = "verify"
)

// Entry is one audit record. Payload snapshots are stored as raw JSON so
// the trail stays readable even if the payload model evolves.
type Entry struct {
	ID              uuid.UUID       `json:"id"`
	ResultID        uuid.UUID       `json:"result_id"`
	OrderID         uuid.UUID       `json:"order_id"`
	TestID          uuid.UUID       `json:"test_id"`
	Action          string          `json:"action"`
	Actor           string          `json:"actor"`
	PreviousPayload json.RawMessage `json:"previous_payload,omitempty"`
	NewPayload      json.RawMessage `json:"new_payload,omitempty"`
	RecordedAt      time.Time       `json:"recorded_at"`
}

// Package lab implements the laboratory order lifecycle and the result
// capture engine: submissions of nested measurement data are decoded from
// any of the accepted wire shapes, persisted as the raw per-test payload
// and flattened into schema-enriched parameter values, all within one
// transaction per submission.
package lab

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidPayload means the outer results envelope could not be
	// decoded into a per-test structure. Nothing is persisted.
	ErrInvalidPayload = errors.New("invalid results payload")
	// ErrUnknownTest means a submission addressed a test that is not
	// attached to the order.
	ErrUnknownTest = errors.New("test is not part of this order")
	// ErrInvalidStatus means a status update named an unknown status or
	// an illegal transition.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrNotFound means the addressed order or result does not exist.
	ErrNotFound = errors.New("not found")
)

const (
	StatusOrdered    = "ordered"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// statusTransitions defines the order state machine. Completed and
// cancelled are terminal.
var statusTransitions = map[string][]string{
	StatusOrdered:    {StatusProcessing, StatusCompleted, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// ValidateTransition checks a status change against the state machine.
func ValidateTransition(from, to string) error {
	allowed, ok := statusTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, from)
	}
	if _, ok := statusTransitions[to]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, from, to)
}

// Order is one laboratory request: a set of tests for one patient
// encounter. Status only changes through explicit status updates and
// verification.
type Order struct {
	ID        uuid.UUID  `json:"id"`
	PatientID uuid.UUID  `json:"patient_id"`
	VisitID   *uuid.UUID `json:"visit_id,omitempty"`
	OrderedBy string     `json:"ordered_by"`
	Status    string     `json:"status"`
	Notes     *string    `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	Results []*Result `json:"results,omitempty"`
}

// Result is the measurement record for one test within one order. Payload
// holds the raw nested submission and is replaced wholesale on every
// ingestion for this (order, test) pair.
type Result struct {
	ID         uuid.UUID  `json:"id"`
	OrderID    uuid.UUID  `json:"order_id"`
	TestID     uuid.UUID  `json:"test_id"`
	Payload    Node       `json:"payload"`
	VerifiedBy *string    `json:"verified_by,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Values []*ResultValue `json:"values,omitempty"`
}

// ResultValue is one flattened, schema-enriched parameter reading. The set
// of values for a result is a derived projection of its payload and is
// fully regenerated on every payload replacement.
type ResultValue struct {
	ID            uuid.UUID `json:"id"`
	ResultID      uuid.UUID `json:"result_id"`
	ParameterPath string    `json:"parameter_path"`
	Label         *string   `json:"label,omitempty"`
	Value         string    `json:"value"`
	Unit          *string   `json:"unit,omitempty"`
	ReferenceText *string   `json:"reference_text,omitempty"`
	ReferenceMin  *float64  `json:"reference_min,omitempty"`
	ReferenceMax  *float64  `json:"reference_max,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

package lab

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type OrderRepository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	List(ctx context.Context, patientID *uuid.UUID, status string, limit, offset int) ([]*Order, int, error)
}

type ResultRepository interface {
	Create(ctx context.Context, r *Result) error
	GetByOrderAndTest(ctx context.Context, orderID, testID uuid.UUID) (*Result, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Result, error)
	// UpsertPayload replaces the payload of the (order, test) result,
	// creating the row if missing, and returns the stored result.
	UpsertPayload(ctx context.Context, orderID, testID uuid.UUID, payload Node) (*Result, error)
	// ReplaceValues deletes every value of the result and inserts the
	// given set, so no stale projection rows survive a payload change.
	ReplaceValues(ctx context.Context, resultID uuid.UUID, values []*ResultValue) error
	ValuesByResult(ctx context.Context, resultID uuid.UUID) ([]*ResultValue, error)
	// VerifyByOrder stamps every result of the order in one statement.
	VerifyByOrder(ctx context.Context, orderID uuid.UUID, verifiedBy string, verifiedAt time.Time) error
}

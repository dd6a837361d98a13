package audit

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Record(ctx context.Context, e *Entry) error
	ListByResult(ctx context.Context, resultID uuid.UUID, limit, offset int) ([]*Entry, int, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID, limit, offset int) ([]*Entry, int, error)
}

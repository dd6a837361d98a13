package catalog

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, td *TestDefinition) error
	GetByID(ctx context.Context, id uuid.UUID) (*TestDefinition, error)
	GetByCode(ctx context.Context, code string) (*TestDefinition, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*TestDefinition, error)
	Update(ctx context.Context, td *TestDefinition) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*TestDefinition, int, error)
}

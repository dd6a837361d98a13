package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, td *TestDefinition) error {
	td.Code = strings.TrimSpace(td.Code)
	td.Name = strings.TrimSpace(td.Name)
	if td.Code == "" {
		return fmt.Errorf("code is required")
	}
	if td.Name == "" {
		return fmt.Errorf("name is required")
	}
	if err := td.Schema.Validate(); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	td.Active = true
	return s.repo.Create(ctx, td)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*TestDefinition, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*TestDefinition, error) {
	return s.repo.GetByCode(ctx, code)
}

func (s *Service) Update(ctx context.Context, td *TestDefinition) error {
	if td.ID == uuid.Nil {
		return fmt.Errorf("id is required")
	}
	if td.Code == "" {
		return fmt.Errorf("code is required")
	}
	if td.Name == "" {
		return fmt.Errorf("name is required")
	}
	if err := td.Schema.Validate(); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	return s.repo.Update(ctx, td)
}

// Deactivate retires a test from ordering. Definitions are never deleted:
// existing results keep referencing them.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetActive(ctx, id, false)
}

func (s *Service) Activate(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetActive(ctx, id, true)
}

func (s *Service) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*TestDefinition, int, error) {
	return s.repo.List(ctx, activeOnly, limit, offset)
}

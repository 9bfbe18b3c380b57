package station

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, s *Station) error
	GetByID(ctx context.Context, id uuid.UUID) (*Station, error)
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Station, error)
	Update(ctx context.Context, s *Station) error
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Station, int, error)
	// First returns the active station with the lowest display order, or nil.
	First(ctx context.Context) (*Station, error)
	Count(ctx context.Context) (int, error)
}

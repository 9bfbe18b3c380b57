package journey

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, s *Step) error
	GetByID(ctx context.Context, id uuid.UUID) (*Step, error)
	// Update writes status, times, queue number, notes and updated_by.
	Update(ctx context.Context, s *Step) error
	SetStartTime(ctx context.Context, id uuid.UUID, t time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByVisit returns the visit's steps in start_time order.
	ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*Step, error)
	// NextQueueNumber is one past the highest queue number issued at the
	// station for steps starting on or after dayStart and before the next day.
	NextQueueNumber(ctx context.Context, stationID uuid.UUID, dayStart time.Time) (int, error)
	// DepartmentSteps lists active steps at stations matching department, plus
	// completed ones ending at or after completedSince when it is non-nil.
	DepartmentSteps(ctx context.Context, department string, completedSince *time.Time) ([]*QueueRow, error)
}

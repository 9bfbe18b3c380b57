package visit

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts v. A vn collision yields a DuplicateVisit error.
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	GetByVN(ctx context.Context, vn string) (*Visit, error)
	// LockForUpdate reads the visit row with FOR UPDATE. It must run inside a
	// transaction and serializes every writer of the visit's journey.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Visit, error)
	SetCurrentStep(ctx context.Context, id uuid.UUID, stationID *uuid.UUID) error
	SetPushToken(ctx context.Context, id uuid.UUID, token string) error
}

package station

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultEstimatedMinutes = 30

// Station maps to the service_step table: one service point a patient passes
// through during a visit.
type Station struct {
	ID               uuid.UUID   `db:"id" json:"id"`
	Name             string      `db:"name" json:"name"`
	Department       string      `db:"department" json:"department"`
	Location         *string     `db:"location" json:"location,omitempty"`
	Floor            *string     `db:"floor" json:"floor,omitempty"`
	EstimatedMinutes int         `db:"estimated_minutes" json:"estimated_minutes"`
	DisplayOrder     *int        `db:"display_order" json:"display_order,omitempty"`
	NextSteps        []uuid.UUID `db:"next_steps" json:"next_steps"`
	IsActive         bool        `db:"is_active" json:"is_active"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

// Input is the body of a create request.
type Input struct {
	Name             string      `json:"name" validate:"required,min=1,max=100"`
	Department       string      `json:"department" validate:"required,min=1,max=100"`
	Location         *string     `json:"location" validate:"omitempty,max=255"`
	Floor            *string     `json:"floor" validate:"omitempty,max=50"`
	EstimatedMinutes *int        `json:"estimated_minutes" validate:"omitempty,gt=0"`
	DisplayOrder     *int        `json:"display_order"`
	NextSteps        []uuid.UUID `json:"next_steps"`
	IsActive         *bool       `json:"is_active"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name             *string      `json:"name" validate:"omitempty,min=1,max=100"`
	Department       *string      `json:"department" validate:"omitempty,min=1,max=100"`
	Location         *string      `json:"location" validate:"omitempty,max=255"`
	Floor            *string      `json:"floor" validate:"omitempty,max=50"`
	EstimatedMinutes *int         `json:"estimated_minutes" validate:"omitempty,gt=0"`
	DisplayOrder     *int         `json:"display_order"`
	NextSteps        *[]uuid.UUID `json:"next_steps"`
	IsActive         *bool        `json:"is_active"`
}

// Covers reports whether a staff department label refers to this station.
// A label may name either the owning department or the station itself.
func (s *Station) Covers(label string) bool {
	label = strings.TrimSpace(label)
	if label == "" {
		return false
	}
	return strings.EqualFold(s.Department, label) || strings.EqualFold(s.Name, label)
}

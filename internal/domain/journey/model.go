package journey

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/journey/internal/domain/visit"
	"github.com/ehr/journey/internal/platform/apperr"
)

type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusSkipped    Status = "skipped"
)

// ParseStatus accepts exactly the four journey step states.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusWaiting, StatusInProgress, StatusCompleted, StatusSkipped:
		return st, nil
	}
	return "", apperr.InvalidInput("invalid status %q", s).WithDetail("field", "status")
}

// Active reports whether a step still holds the patient at its station.
func (s Status) Active() bool {
	return s == StatusWaiting || s == StatusInProgress
}

// Step maps to the journey_step table: one occurrence of a visit at a station.
type Step struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	VisitID     uuid.UUID  `db:"visit_id" json:"visit_id"`
	StationID   uuid.UUID  `db:"step_id" json:"step_id"`
	Status      Status     `db:"status" json:"status"`
	StartTime   time.Time  `db:"start_time" json:"start_time"`
	EndTime     *time.Time `db:"end_time" json:"end_time"`
	QueueNumber *int       `db:"queue_number" json:"queue_number"`
	Notes       *string    `db:"notes" json:"notes"`
	UpdatedBy   *string    `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// normalizeEndTime makes end_time agree with status: active steps carry none,
// completed steps always carry one.
func (s *Step) normalizeEndTime(now time.Time) {
	switch {
	case s.Status.Active():
		s.EndTime = nil
	case s.Status == StatusCompleted && s.EndTime == nil:
		t := now
		s.EndTime = &t
	}
}

// QueueRow is a journey step joined with its visit and station for the
// department queue.
type QueueRow struct {
	Step
	VN          string `db:"vn"`
	StationName string `db:"station_name"`
	Department  string `db:"department"`
}

type CompleteInput struct {
	Notes         *string    `json:"notes"`
	NextStationID *uuid.UUID `json:"next_station_id"`
	// AutoAdvance resolves the next station from the catalog when
	// NextStationID is absent. Handled by the transport.
	AutoAdvance bool `json:"auto_advance"`
}

type CompleteResult struct {
	Completed *Step `json:"completed"`
	Next      *Step `json:"next,omitempty"`
}

type RevertInput struct {
	Status string `json:"status"`
}

// StepPatch is a direct admin edit. Nil fields are left unchanged; the Clear
// flags null a field out.
type StepPatch struct {
	Status           *string    `json:"status"`
	Notes            *string    `json:"notes"`
	StartTime        *time.Time `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	QueueNumber      *int       `json:"queue_number"`
	ClearNotes       bool       `json:"clear_notes"`
	ClearEndTime     bool       `json:"clear_end_time"`
	ClearQueueNumber bool       `json:"clear_queue_number"`
}

type CreateStepInput struct {
	StationID   uuid.UUID  `json:"station_id"`
	Status      string     `json:"status"`
	Notes       *string    `json:"notes"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	QueueNumber *int       `json:"queue_number"`
}

type ReorderInput struct {
	StepA uuid.UUID `json:"step_a"`
	StepB uuid.UUID `json:"step_b"`
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

type MoveInput struct {
	Direction Direction `json:"direction"`
}

// TimelineEntry is a step enriched with its station for display.
type TimelineEntry struct {
	Step
	StationName     string  `json:"station_name"`
	Department      string  `json:"department"`
	Location        *string `json:"location,omitempty"`
	Floor           *string `json:"floor,omitempty"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
}

type VisitStatus struct {
	Visit          *visit.Visit    `json:"visit"`
	CurrentStep    *TimelineEntry  `json:"current_step"`
	DepartmentStep *TimelineEntry  `json:"department_step,omitempty"`
	Timeline       []TimelineEntry `json:"timeline"`
}

type QueueEntry struct {
	StepID         uuid.UUID  `json:"step_id"`
	VisitID        uuid.UUID  `json:"visit_id"`
	VN             string     `json:"vn"`
	StationID      uuid.UUID  `json:"station_id"`
	StationName    string     `json:"station_name"`
	Status         Status     `json:"status"`
	QueueNumber    *int       `json:"queue_number"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	WaitingMinutes int        `json:"waiting_minutes"`
	// Position ranks waiting entries from 1. Other statuses carry none.
	Position *int `json:"position,omitempty"`
}

type DepartmentQueue struct {
	Department string       `json:"department"`
	Waiting    int          `json:"waiting"`
	InProgress int          `json:"in_progress"`
	Entries    []QueueEntry `json:"entries"`
}

package journey

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/journey/internal/platform/apperr"
	"github.com/ehr/journey/internal/platform/db"
)

type stepRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &stepRepoPG{pool: pool}
}

func (r *stepRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const stepCols = `id, visit_id, step_id, status, start_time, end_time, queue_number, notes, updated_by, created_at`

const stepOrder = `ORDER BY start_time ASC, created_at ASC, id ASC`

func scanStep(row pgx.Row) (*Step, error) {
	var s Step
	err := row.Scan(&s.ID, &s.VisitID, &s.StationID, &s.Status, &s.StartTime, &s.EndTime,
		&s.QueueNumber, &s.Notes, &s.UpdatedBy, &s.CreatedAt)
	return &s, err
}

func (r *stepRepoPG) Create(ctx context.Context, s *Step) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO journey_step (id, visit_id, step_id, status, start_time, end_time,
			queue_number, notes, updated_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		s.ID, s.VisitID, s.StationID, s.Status, s.StartTime, s.EndTime,
		s.QueueNumber, s.Notes, s.UpdatedBy).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert journey step: %w", err)
	}
	return nil
}

func (r *stepRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Step, error) {
	s, err := scanStep(r.conn(ctx).QueryRow(ctx, `SELECT `+stepCols+` FROM journey_step WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("journey step", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get journey step: %w", err)
	}
	return s, nil
}

func (r *stepRepoPG) Update(ctx context.Context, s *Step) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE journey_step SET status=$2, start_time=$3, end_time=$4, queue_number=$5,
			notes=$6, updated_by=$7
		WHERE id = $1`,
		s.ID, s.Status, s.StartTime, s.EndTime, s.QueueNumber, s.Notes, s.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update journey step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("journey step", s.ID.String())
	}
	return nil
}

func (r *stepRepoPG) SetStartTime(ctx context.Context, id uuid.UUID, t time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE journey_step SET start_time = $2 WHERE id = $1`, id, t)
	if err != nil {
		return fmt.Errorf("set start time: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("journey step", id.String())
	}
	return nil
}

func (r *stepRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM journey_step WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete journey step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("journey step", id.String())
	}
	return nil
}

func (r *stepRepoPG) ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*Step, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+stepCols+` FROM journey_step WHERE visit_id = $1 `+stepOrder, visitID)
	if err != nil {
		return nil, fmt.Errorf("list journey steps: %w", err)
	}
	defer rows.Close()
	var steps []*Step
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func (r *stepRepoPG) NextQueueNumber(ctx context.Context, stationID uuid.UUID, dayStart time.Time) (int, error) {
	var next int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(MAX(queue_number), 0) + 1 FROM journey_step
		WHERE step_id = $1 AND start_time >= $2 AND start_time < $3`,
		stationID, dayStart, dayStart.AddDate(0, 0, 1)).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next queue number: %w", err)
	}
	return next, nil
}

func (r *stepRepoPG) DepartmentSteps(ctx context.Context, department string, completedSince *time.Time) ([]*QueueRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT js.id, js.visit_id, js.step_id, js.status, js.start_time, js.end_time,
			js.queue_number, js.notes, js.updated_by, js.created_at,
			pv.vn, ss.name, ss.department
		FROM journey_step js
		JOIN patient_visit pv ON pv.id = js.visit_id
		JOIN service_step ss ON ss.id = js.step_id
		WHERE (LOWER(ss.department) = LOWER($1) OR LOWER(ss.name) = LOWER($1))
		  AND (js.status IN ('waiting', 'in_progress')
		       OR ($2::timestamptz IS NOT NULL AND js.status = 'completed' AND js.end_time >= $2))
		ORDER BY js.start_time ASC, js.created_at ASC, js.id ASC`,
		department, completedSince)
	if err != nil {
		return nil, fmt.Errorf("department queue: %w", err)
	}
	defer rows.Close()
	var out []*QueueRow
	for rows.Next() {
		var q QueueRow
		if err := rows.Scan(&q.ID, &q.VisitID, &q.StationID, &q.Status, &q.StartTime, &q.EndTime,
			&q.QueueNumber, &q.Notes, &q.UpdatedBy, &q.CreatedAt,
			&q.VN, &q.StationName, &q.Department); err != nil {
			return nil, err
		}
		out = append(out, &q)
	}
	return out, rows.Err()
}

package station

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/journey/internal/platform/apperr"
	"github.com/ehr/journey/internal/platform/db"
)

type stationRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &stationRepoPG{pool: pool}
}

func (r *stationRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const stationCols = `id, name, department, location, floor, estimated_minutes,
	display_order, next_steps, is_active, created_at, updated_at`

const stationOrder = `ORDER BY display_order ASC NULLS LAST, created_at ASC, id ASC`

func scanStation(row pgx.Row) (*Station, error) {
	var s Station
	err := row.Scan(&s.ID, &s.Name, &s.Department, &s.Location, &s.Floor, &s.EstimatedMinutes,
		&s.DisplayOrder, &s.NextSteps, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if s.NextSteps == nil {
		s.NextSteps = []uuid.UUID{}
	}
	return &s, nil
}

func (r *stationRepoPG) Create(ctx context.Context, s *Station) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.NextSteps == nil {
		s.NextSteps = []uuid.UUID{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO service_step (id, name, department, location, floor, estimated_minutes,
			display_order, next_steps, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		s.ID, s.Name, s.Department, s.Location, s.Floor, s.EstimatedMinutes,
		s.DisplayOrder, s.NextSteps, s.IsActive).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert station: %w", err)
	}
	return nil
}

func (r *stationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Station, error) {
	s, err := scanStation(r.conn(ctx).QueryRow(ctx, `SELECT `+stationCols+` FROM service_step WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("station", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get station: %w", err)
	}
	return s, nil
}

func (r *stationRepoPG) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Station, error) {
	out := make(map[uuid.UUID]*Station, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+stationCols+` FROM service_step WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get stations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		s, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

func (r *stationRepoPG) Update(ctx context.Context, s *Station) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE service_step SET name=$2, department=$3, location=$4, floor=$5,
			estimated_minutes=$6, display_order=$7, next_steps=$8, is_active=$9, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.Name, s.Department, s.Location, s.Floor,
		s.EstimatedMinutes, s.DisplayOrder, s.NextSteps, s.IsActive)
	if err != nil {
		return fmt.Errorf("update station: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("station", s.ID.String())
	}
	return nil
}

func (r *stationRepoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Station, int, error) {
	where := ``
	if activeOnly {
		where = ` WHERE is_active`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM service_step`+where).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count stations: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+stationCols+` FROM service_step`+where+` `+stationOrder+` LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()
	var items []*Station
	for rows.Next() {
		s, err := scanStation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *stationRepoPG) First(ctx context.Context) (*Station, error) {
	s, err := scanStation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+stationCols+` FROM service_step WHERE is_active `+stationOrder+` LIMIT 1`))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("default station: %w", err)
	}
	return s, nil
}

func (r *stationRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM service_step`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count stations: %w", err)
	}
	return n, nil
}

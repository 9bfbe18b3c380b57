package visit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/journey/internal/platform/apperr"
	"github.com/ehr/journey/internal/platform/db"
)

const vnConstraint = "patient_visit_vn_key"

type visitRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &visitRepoPG{pool: pool}
}

func (r *visitRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const visitCols = `id, vn, hn_secret_hash, current_step_id, start_time, end_time,
	qr_payload, push_token, created_at, updated_at`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.VN, &v.HNSecretHash, &v.CurrentStepID, &v.StartTime, &v.EndTime,
		&v.QRPayload, &v.PushToken, &v.CreatedAt, &v.UpdatedAt)
	return &v, err
}

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_visit (id, vn, hn_secret_hash, current_step_id, start_time, qr_payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		v.ID, v.VN, v.HNSecretHash, v.CurrentStepID, v.StartTime, v.QRPayload,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if db.IsUniqueViolation(err, vnConstraint) {
		return apperr.DuplicateVisit(v.VN)
	}
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

func (r *visitRepoPG) get(ctx context.Context, label, where string, arg interface{}) (*Visit, error) {
	v, err := scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM patient_visit WHERE `+where, arg))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("visit", label)
	}
	if err != nil {
		return nil, fmt.Errorf("get visit: %w", err)
	}
	return v, nil
}

func (r *visitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return r.get(ctx, id.String(), `id = $1`, id)
}

func (r *visitRepoPG) GetByVN(ctx context.Context, vn string) (*Visit, error) {
	return r.get(ctx, "", `vn = $1`, vn)
}

func (r *visitRepoPG) LockForUpdate(ctx context.Context, id uuid.UUID) (*Visit, error) {
	if db.TxFromContext(ctx) == nil {
		return nil, fmt.Errorf("lock visit %s: no transaction in context", id)
	}
	return r.get(ctx, id.String(), `id = $1 FOR UPDATE`, id)
}

func (r *visitRepoPG) SetCurrentStep(ctx context.Context, id uuid.UUID, stationID *uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patient_visit SET current_step_id = $2, updated_at = NOW() WHERE id = $1`, id, stationID)
	if err != nil {
		return fmt.Errorf("set current step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("visit", id.String())
	}
	return nil
}

func (r *visitRepoPG) SetPushToken(ctx context.Context, id uuid.UUID, token string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patient_visit SET push_token = $2, updated_at = NOW() WHERE id = $1`, id, token)
	if err != nil {
		return fmt.Errorf("set push token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("visit", id.String())
	}
	return nil
}

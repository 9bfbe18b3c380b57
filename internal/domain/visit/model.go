package visit

import (
	"time"

	"github.com/google/uuid"
)

// Visit maps to the patient_visit table. CurrentStepID names the station the
// patient is currently at or queued for, not a journey_step row.
type Visit struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	VN            string     `db:"vn" json:"vn"`
	HNSecretHash  string     `db:"hn_secret_hash" json:"-"`
	CurrentStepID *uuid.UUID `db:"current_step_id" json:"current_step_id"`
	StartTime     time.Time  `db:"start_time" json:"start_time"`
	EndTime       *time.Time `db:"end_time" json:"end_time,omitempty"`
	QRPayload     string     `db:"qr_payload" json:"qr_payload"`
	PushToken     *string    `db:"push_token" json:"-"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// PushTokenValue returns the registered device token or "".
func (v *Visit) PushTokenValue() string {
	if v.PushToken == nil {
		return ""
	}
	return *v.PushToken
}

type CreateInput struct {
	VN             string     `json:"vn" validate:"required,max=64"`
	HNSecret       string     `json:"hn_secret" validate:"required,max=128"`
	StartStationID *uuid.UUID `json:"start_station_id"`
}

type LookupInput struct {
	VN       string `json:"vn" validate:"required,max=64"`
	HNSecret string `json:"hn_secret" validate:"required,max=128"`
}

type PushTokenInput struct {
	Token string `json:"token" validate:"required,max=512"`
}

package visit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/journey/internal/domain/station"
	"github.com/ehr/journey/internal/platform/apperr"
)

type mockRepo struct {
	store map[uuid.UUID]*Visit
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Visit)}
}

func (m *mockRepo) Create(_ context.Context, v *Visit) error {
	for _, existing := range m.store {
		if existing.VN == v.VN {
			return apperr.DuplicateVisit(v.VN)
		}
	}
	cp := *v
	m.store[v.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Visit, error) {
	v, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("visit", id.String())
	}
	cp := *v
	return &cp, nil
}

func (m *mockRepo) GetByVN(_ context.Context, vn string) (*Visit, error) {
	for _, v := range m.store {
		if v.VN == vn {
			cp := *v
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("visit", "")
}

func (m *mockRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return m.GetByID(ctx, id)
}

func (m *mockRepo) SetCurrentStep(_ context.Context, id uuid.UUID, stationID *uuid.UUID) error {
	v, ok := m.store[id]
	if !ok {
		return apperr.NotFound("visit", id.String())
	}
	v.CurrentStepID = stationID
	return nil
}

func (m *mockRepo) SetPushToken(_ context.Context, id uuid.UUID, token string) error {
	v, ok := m.store[id]
	if !ok {
		return apperr.NotFound("visit", id.String())
	}
	v.PushToken = &token
	return nil
}

type mockStations struct {
	byID  map[uuid.UUID]*station.Station
	first *station.Station
}

func (m *mockStations) GetStation(_ context.Context, id uuid.UUID) (*station.Station, error) {
	st, ok := m.byID[id]
	if !ok {
		return nil, apperr.NotFound("station", id.String())
	}
	return st, nil
}

func (m *mockStations) DefaultStartStation(context.Context) (*station.Station, error) {
	return m.first, nil
}

type seededStep struct {
	visitID, stationID uuid.UUID
	at                 time.Time
}

type mockSeeder struct {
	steps []seededStep
	err   error
}

func (m *mockSeeder) SeedFirstStep(_ context.Context, visitID, stationID uuid.UUID, at time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.steps = append(m.steps, seededStep{visitID, stationID, at})
	return nil
}

// txRecorder runs fn directly and counts how often a transaction was opened.
type txRecorder struct{ calls int }

func (t *txRecorder) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

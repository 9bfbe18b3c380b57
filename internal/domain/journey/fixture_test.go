package journey

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/journey/internal/domain/station"
	"github.com/ehr/journey/internal/domain/visit"
	"github.com/ehr/journey/internal/platform/auth"
	"github.com/ehr/journey/internal/platform/metrics"
)

var (
	admin = auth.Actor{UserID: "admin-1", Role: auth.RoleAdmin}
	nurse = auth.Actor{UserID: "nurse-1", Role: auth.RoleStaff, Department: "Nursing"}
	clerk = auth.Actor{UserID: "clerk-1", Role: auth.RoleStaff, Department: "Medical Records"}
)

// fakeClock returns its current time and then advances one minute.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(time.Minute)
	return now
}

type env struct {
	store    *memStore
	tx       *memTx
	notifier *recordingNotifier
	clock    *fakeClock
	svc      *Service
	stations *station.Service
	visits   *visit.Service

	registration, vitals, screening, doctor, payment, pharmacy *station.Station
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := newMemStore()
	tx := &memTx{store: store}
	stationSvc := station.NewService(memStations{store}, zerolog.Nop())
	seeded, err := stationSvc.SeedDefaults(context.Background())
	if err != nil || len(seeded) != 6 {
		t.Fatalf("seeding stations: %v", err)
	}

	notifier := &recordingNotifier{}
	svc := NewService(memSteps{store}, memVisits{store}, stationSvc, tx, notifier,
		metrics.New(metrics.DefaultConfig()), zerolog.Nop())
	clock := &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	svc.now = clock.Now

	return &env{
		store:        store,
		tx:           tx,
		notifier:     notifier,
		clock:        clock,
		svc:          svc,
		stations:     stationSvc,
		visits:       visit.NewService(memVisits{store}, stationSvc, svc, tx, "https://portal.test", zerolog.Nop()),
		registration: seeded[0],
		vitals:       seeded[1],
		screening:    seeded[2],
		doctor:       seeded[3],
		payment:      seeded[4],
		pharmacy:     seeded[5],
	}
}

// newVisit registers a visit directly in the store with one waiting step at
// stationID, skipping credential hashing.
func (e *env) newVisit(t *testing.T, vn string, stationID uuid.UUID) *visit.Visit {
	t.Helper()
	now := e.clock.Now()
	sid := stationID
	v := &visit.Visit{ID: uuid.New(), VN: vn, StartTime: now, CurrentStepID: &sid, QRPayload: "https://portal.test/track?vn=" + vn}
	if err := (memVisits{e.store}).Create(context.Background(), v); err != nil {
		t.Fatalf("create visit: %v", err)
	}
	if err := e.svc.SeedFirstStep(context.Background(), v.ID, stationID, now); err != nil {
		t.Fatalf("seed step: %v", err)
	}
	return v
}

func (e *env) steps(visitID uuid.UUID) []*Step {
	steps, _ := (memSteps{e.store}).ListByVisit(context.Background(), visitID)
	return steps
}

func (e *env) step(t *testing.T, id uuid.UUID) *Step {
	t.Helper()
	s, err := (memSteps{e.store}).GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("step %s: %v", id, err)
	}
	return s
}

func (e *env) pointer(visitID uuid.UUID) *uuid.UUID {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	return e.store.visits[visitID].CurrentStepID
}

func (e *env) mustCreate(t *testing.T, visitID, stationID uuid.UUID, status Status, start time.Time) *Step {
	t.Helper()
	st, err := e.svc.CreateStep(context.Background(), admin, visitID, CreateStepInput{
		StationID: stationID, Status: string(status), StartTime: &start,
	})
	if err != nil {
		t.Fatalf("create step: %v", err)
	}
	return st
}

func assertPointer(t *testing.T, e *env, visitID uuid.UUID, want *station.Station) {
	t.Helper()
	got := e.pointer(visitID)
	switch {
	case want == nil && got != nil:
		t.Errorf("expected no current step, got %s", *got)
	case want != nil && got == nil:
		t.Errorf("expected current step %s, got none", want.Name)
	case want != nil && *got != want.ID:
		t.Errorf("expected current step %s, got %s", want.Name, *got)
	}
}

// checkInvariants asserts the ledger rules that must hold after every
// operation.
func checkInvariants(t *testing.T, e *env, visitID uuid.UUID) {
	t.Helper()
	assertLedger(t, visitID, e.steps(visitID), e.pointer(visitID))
}

func assertLedger(t *testing.T, visitID uuid.UUID, steps []*Step, ptr *uuid.UUID) {
	t.Helper()
	inProgress := 0
	for _, s := range steps {
		if s.Status == StatusInProgress {
			inProgress++
		}
		if s.Status.Active() && s.EndTime != nil {
			t.Fatalf("active step %s carries an end time", s.ID)
		}
		if s.Status == StatusCompleted && s.EndTime == nil {
			t.Fatalf("completed step %s has no end time", s.ID)
		}
	}
	if inProgress > 1 {
		t.Fatalf("visit %s has %d in_progress steps", visitID, inProgress)
	}

	active := CurrentStep(steps) != nil
	if ptr != nil && !hasActiveAt(steps, *ptr) {
		t.Fatalf("pointer %s names a station with no active step", *ptr)
	}
	if ptr == nil && active {
		t.Fatalf("pointer is null while active steps remain")
	}
}

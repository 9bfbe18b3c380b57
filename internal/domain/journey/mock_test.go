package journey

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/journey/internal/domain/station"
	"github.com/ehr/journey/internal/domain/visit"
	"github.com/ehr/journey/internal/platform/apperr"
	"github.com/ehr/journey/internal/platform/notification"
)

// memStore backs the step, visit and station mocks. mu guards the maps for
// the length of a single call. Visit rows carry their own locks, held by a
// memTx until it ends, so concurrent units of work on one visit serialize the
// way SELECT ... FOR UPDATE makes them.
type memStore struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]*sync.Mutex
	steps    map[uuid.UUID]*Step
	visits   map[uuid.UUID]*visit.Visit
	stations map[uuid.UUID]*station.Station
	seq      int

	failUpdate error
}

func newMemStore() *memStore {
	return &memStore{
		rows:     make(map[uuid.UUID]*sync.Mutex),
		steps:    make(map[uuid.UUID]*Step),
		visits:   make(map[uuid.UUID]*visit.Visit),
		stations: make(map[uuid.UUID]*station.Station),
	}
}

type txKey struct{}

// memTxState is the undo log and the row locks of one open unit of work.
type memTxState struct {
	undo []func()
	held map[uuid.UUID]*sync.Mutex
}

func txState(ctx context.Context) *memTxState {
	st, _ := ctx.Value(txKey{}).(*memTxState)
	return st
}

// keepStep records how to restore step id if the unit of work fails. The
// caller holds mu.
func (m *memStore) keepStep(ctx context.Context, id uuid.UUID) {
	st := txState(ctx)
	if st == nil {
		return
	}
	if prev, ok := m.steps[id]; ok {
		cp := *prev
		st.undo = append(st.undo, func() { m.steps[id] = &cp })
		return
	}
	st.undo = append(st.undo, func() { delete(m.steps, id) })
}

// keepVisit is keepStep for visit rows.
func (m *memStore) keepVisit(ctx context.Context, id uuid.UUID) {
	st := txState(ctx)
	if st == nil {
		return
	}
	if prev, ok := m.visits[id]; ok {
		cp := *prev
		st.undo = append(st.undo, func() { m.visits[id] = &cp })
		return
	}
	st.undo = append(st.undo, func() { delete(m.visits, id) })
}

type memTx struct {
	store *memStore
	calls int
}

func (t *memTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txState(ctx) != nil {
		return fn(ctx)
	}
	t.store.mu.Lock()
	t.calls++
	t.store.mu.Unlock()

	st := &memTxState{held: make(map[uuid.UUID]*sync.Mutex)}
	err := fn(context.WithValue(ctx, txKey{}, st))
	if err != nil {
		t.store.mu.Lock()
		for i := len(st.undo) - 1; i >= 0; i-- {
			st.undo[i]()
		}
		t.store.mu.Unlock()
	}
	for _, row := range st.held {
		row.Unlock()
	}
	return err
}

// memSteps implements Repository.
type memSteps struct{ *memStore }

func (m memSteps) Create(ctx context.Context, s *Step) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keepStep(ctx, s.ID)
	cp := *s
	m.steps[s.ID] = &cp
	return nil
}

func (m memSteps) GetByID(_ context.Context, id uuid.UUID) (*Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.steps[id]
	if !ok {
		return nil, apperr.NotFound("journey step", id.String())
	}
	cp := *s
	return &cp, nil
}

func (m memSteps) Update(ctx context.Context, s *Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return m.failUpdate
	}
	if _, ok := m.steps[s.ID]; !ok {
		return apperr.NotFound("journey step", s.ID.String())
	}
	m.keepStep(ctx, s.ID)
	cp := *s
	m.steps[s.ID] = &cp
	return nil
}

func (m memSteps) SetStartTime(ctx context.Context, id uuid.UUID, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.steps[id]
	if !ok {
		return apperr.NotFound("journey step", id.String())
	}
	m.keepStep(ctx, id)
	cp := *s
	cp.StartTime = t
	m.steps[id] = &cp
	return nil
}

func (m memSteps) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.steps[id]; !ok {
		return apperr.NotFound("journey step", id.String())
	}
	m.keepStep(ctx, id)
	delete(m.steps, id)
	return nil
}

func (m memSteps) ListByVisit(_ context.Context, visitID uuid.UUID) ([]*Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Step
	for _, s := range m.steps {
		if s.VisitID == visitID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sortSteps(out)
	return out, nil
}

func (m memSteps) NextQueueNumber(_ context.Context, stationID uuid.UUID, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	end := day.AddDate(0, 0, 1)
	for _, s := range m.steps {
		if s.StationID != stationID || s.QueueNumber == nil {
			continue
		}
		if s.StartTime.Before(day) || !s.StartTime.Before(end) {
			continue
		}
		if *s.QueueNumber > max {
			max = *s.QueueNumber
		}
	}
	return max + 1, nil
}

func (m memSteps) DepartmentSteps(_ context.Context, department string, since *time.Time) ([]*QueueRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*QueueRow
	for _, s := range m.steps {
		st := m.stations[s.StationID]
		if st == nil || !(strings.EqualFold(st.Department, department) || strings.EqualFold(st.Name, department)) {
			continue
		}
		keep := s.Status.Active() ||
			(since != nil && s.Status == StatusCompleted && s.EndTime != nil && !s.EndTime.Before(*since))
		if !keep {
			continue
		}
		out = append(out, &QueueRow{
			Step:        *s,
			VN:          m.visits[s.VisitID].VN,
			StationName: st.Name,
			Department:  st.Department,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return stepLess(&out[i].Step, &out[j].Step) })
	return out, nil
}

// memVisits implements visit.Repository and VisitStore.
type memVisits struct{ *memStore }

func (m memVisits) Create(ctx context.Context, v *visit.Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.visits {
		if existing.VN == v.VN {
			return apperr.DuplicateVisit(v.VN)
		}
	}
	m.keepVisit(ctx, v.ID)
	cp := *v
	m.visits[v.ID] = &cp
	return nil
}

func (m memVisits) GetByID(_ context.Context, id uuid.UUID) (*visit.Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[id]
	if !ok {
		return nil, apperr.NotFound("visit", id.String())
	}
	cp := *v
	return &cp, nil
}

func (m memVisits) GetByVN(_ context.Context, vn string) (*visit.Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.visits {
		if v.VN == vn {
			cp := *v
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("visit", "")
}

// LockForUpdate takes the visit's row lock for the rest of the unit of work.
func (m memVisits) LockForUpdate(ctx context.Context, id uuid.UUID) (*visit.Visit, error) {
	st := txState(ctx)
	if st == nil {
		return nil, errors.New("lock for update outside a transaction")
	}
	if _, ok := st.held[id]; !ok {
		m.mu.Lock()
		row, ok := m.rows[id]
		if !ok {
			row = &sync.Mutex{}
			m.rows[id] = row
		}
		m.mu.Unlock()
		row.Lock()
		st.held[id] = row
	}
	return m.GetByID(ctx, id)
}

func (m memVisits) SetCurrentStep(ctx context.Context, id uuid.UUID, stationID *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[id]
	if !ok {
		return apperr.NotFound("visit", id.String())
	}
	m.keepVisit(ctx, id)
	cp := *v
	cp.CurrentStepID = nil
	if stationID != nil {
		sid := *stationID
		cp.CurrentStepID = &sid
	}
	m.visits[id] = &cp
	return nil
}

func (m memVisits) SetPushToken(ctx context.Context, id uuid.UUID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[id]
	if !ok {
		return apperr.NotFound("visit", id.String())
	}
	m.keepVisit(ctx, id)
	cp := *v
	cp.PushToken = &token
	m.visits[id] = &cp
	return nil
}

// memStations implements station.Repository.
type memStations struct{ *memStore }

func (m memStations) Create(_ context.Context, s *station.Station) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	s.CreatedAt = time.Date(2024, 1, 1, 0, 0, m.seq, 0, time.UTC)
	cp := *s
	m.stations[s.ID] = &cp
	return nil
}

func (m memStations) GetByID(_ context.Context, id uuid.UUID) (*station.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stations[id]
	if !ok {
		return nil, apperr.NotFound("station", id.String())
	}
	cp := *s
	return &cp, nil
}

func (m memStations) GetMany(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*station.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]*station.Station)
	for _, id := range ids {
		if s, ok := m.stations[id]; ok {
			cp := *s
			out[id] = &cp
		}
	}
	return out, nil
}

func (m memStations) Update(_ context.Context, s *station.Station) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stations[s.ID]; !ok {
		return apperr.NotFound("station", s.ID.String())
	}
	cp := *s
	m.stations[s.ID] = &cp
	return nil
}

func (m memStations) ordered() []*station.Station {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*station.Station
	for _, s := range m.stations {
		if s.IsActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.DisplayOrder == nil) != (b.DisplayOrder == nil) {
			return a.DisplayOrder != nil
		}
		if a.DisplayOrder != nil && *a.DisplayOrder != *b.DisplayOrder {
			return *a.DisplayOrder < *b.DisplayOrder
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}

func (m memStations) List(_ context.Context, _ bool, limit, offset int) ([]*station.Station, int, error) {
	all := m.ordered()
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m memStations) First(context.Context) (*station.Station, error) {
	all := m.ordered()
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

func (m memStations) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stations), nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (r *recordingNotifier) Notify(_ context.Context, msg notification.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingNotifier) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Event)
	}
	return out
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

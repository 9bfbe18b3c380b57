package station

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/ehr/journey/internal/platform/apperr"
)

type mockRepo struct {
	store map[uuid.UUID]*Station
	seq   int
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Station)}
}

func (m *mockRepo) Create(_ context.Context, s *Station) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.seq++
	s.CreatedAt = s.CreatedAt.AddDate(0, 0, m.seq)
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Station, error) {
	s, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("station", id.String())
	}
	cp := *s
	return &cp, nil
}

func (m *mockRepo) GetMany(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*Station, error) {
	out := map[uuid.UUID]*Station{}
	for _, id := range ids {
		if s, ok := m.store[id]; ok {
			cp := *s
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *mockRepo) Update(_ context.Context, s *Station) error {
	if _, ok := m.store[s.ID]; !ok {
		return apperr.NotFound("station", s.ID.String())
	}
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *mockRepo) ordered(activeOnly bool) []*Station {
	var out []*Station
	for _, s := range m.store {
		if activeOnly && !s.IsActive {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.DisplayOrder != nil && b.DisplayOrder == nil:
			return true
		case a.DisplayOrder == nil && b.DisplayOrder != nil:
			return false
		case a.DisplayOrder != nil && *a.DisplayOrder != *b.DisplayOrder:
			return *a.DisplayOrder < *b.DisplayOrder
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}

func (m *mockRepo) List(_ context.Context, activeOnly bool, limit, offset int) ([]*Station, int, error) {
	all := m.ordered(activeOnly)
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) First(_ context.Context) (*Station, error) {
	all := m.ordered(true)
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

func (m *mockRepo) Count(_ context.Context) (int, error) {
	return len(m.store), nil
}

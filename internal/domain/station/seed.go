package station

import (
	"context"

	"github.com/google/uuid"
)

type seedStation struct {
	name, department, location, floor string
	minutes                           int
}

var defaultStations = []seedStation{
	{"Registration", "Medical Records", "Main lobby", "1", 10},
	{"Vitals", "Nursing", "Screening bay A", "1", 10},
	{"Screening", "Nursing", "Screening bay B", "1", 15},
	{"Doctor", "OPD", "Clinic rooms", "2", 20},
	{"Payment", "Finance", "Cashier counter", "1", 10},
	{"Pharmacy", "Pharmacy", "Dispensary", "1", 15},
}

// SeedDefaults registers the default outpatient flow, each station pointing at
// the next. It does nothing when any station already exists.
func (s *Service) SeedDefaults(ctx context.Context) ([]*Station, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		s.logger.Info().Int("existing", n).Msg("stations already present, skipping seed")
		return nil, nil
	}

	ids := make([]uuid.UUID, len(defaultStations))
	for i := range ids {
		ids[i] = uuid.New()
	}

	created := make([]*Station, 0, len(defaultStations))
	for i, d := range defaultStations {
		order := i + 1
		location, floor := d.location, d.floor
		st := &Station{
			ID:               ids[i],
			Name:             d.name,
			Department:       d.department,
			Location:         &location,
			Floor:            &floor,
			EstimatedMinutes: d.minutes,
			DisplayOrder:     &order,
			NextSteps:        []uuid.UUID{},
			IsActive:         true,
		}
		if i+1 < len(ids) {
			st.NextSteps = []uuid.UUID{ids[i+1]}
		}
		created = append(created, st)
	}

	for _, st := range created {
		if err := s.repo.Create(ctx, st); err != nil {
			return nil, err
		}
	}
	s.logger.Info().Int("count", len(created)).Msg("default stations seeded")
	return created, nil
}

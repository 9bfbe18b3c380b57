package station

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/journey/internal/platform/apperr"
)

type Service struct {
	repo     Repository
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With().Str("component", "station").Logger(),
	}
}

func (s *Service) CreateStation(ctx context.Context, in Input) (*Station, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Department = strings.TrimSpace(in.Department)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	st := &Station{
		ID:               uuid.New(),
		Name:             in.Name,
		Department:       in.Department,
		Location:         in.Location,
		Floor:            in.Floor,
		EstimatedMinutes: DefaultEstimatedMinutes,
		DisplayOrder:     in.DisplayOrder,
		NextSteps:        dedupe(in.NextSteps),
		IsActive:         true,
	}
	if in.EstimatedMinutes != nil {
		st.EstimatedMinutes = *in.EstimatedMinutes
	}
	if in.IsActive != nil {
		st.IsActive = *in.IsActive
	}
	if err := s.checkNextSteps(ctx, st.ID, st.NextSteps); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, st); err != nil {
		return nil, err
	}
	s.logger.Info().Str("station_id", st.ID.String()).Str("name", st.Name).Msg("station created")
	return st, nil
}

func (s *Service) UpdateStation(ctx context.Context, id uuid.UUID, p Patch) (*Station, error) {
	if err := s.validate.Struct(p); err != nil {
		return nil, validationError(err)
	}
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		st.Name = strings.TrimSpace(*p.Name)
	}
	if p.Department != nil {
		st.Department = strings.TrimSpace(*p.Department)
	}
	if st.Name == "" || st.Department == "" {
		return nil, apperr.InvalidInput("name and department must not be blank")
	}
	if p.Location != nil {
		st.Location = p.Location
	}
	if p.Floor != nil {
		st.Floor = p.Floor
	}
	if p.EstimatedMinutes != nil {
		st.EstimatedMinutes = *p.EstimatedMinutes
	}
	if p.DisplayOrder != nil {
		st.DisplayOrder = p.DisplayOrder
	}
	if p.NextSteps != nil {
		st.NextSteps = dedupe(*p.NextSteps)
		if err := s.checkNextSteps(ctx, st.ID, st.NextSteps); err != nil {
			return nil, err
		}
	}
	if p.IsActive != nil {
		st.IsActive = *p.IsActive
	}

	if err := s.repo.Update(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// DeactivateStation soft-deletes a station. History that references it is kept.
func (s *Service) DeactivateStation(ctx context.Context, id uuid.UUID) error {
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !st.IsActive {
		return nil
	}
	st.IsActive = false
	if err := s.repo.Update(ctx, st); err != nil {
		return err
	}
	s.logger.Info().Str("station_id", id.String()).Msg("station deactivated")
	return nil
}

func (s *Service) GetStation(ctx context.Context, id uuid.UUID) (*Station, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetStations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Station, error) {
	return s.repo.GetMany(ctx, ids)
}

func (s *Service) ListStations(ctx context.Context, activeOnly bool, limit, offset int) ([]*Station, int, error) {
	return s.repo.List(ctx, activeOnly, limit, offset)
}

// DefaultStartStation is where new visits begin, or nil when no station is active.
func (s *Service) DefaultStartStation(ctx context.Context) (*Station, error) {
	return s.repo.First(ctx)
}

// SuggestNextStation returns the first active candidate successor of id, or
// nil when there is none.
func (s *Service) SuggestNextStation(ctx context.Context, id uuid.UUID) (*Station, error) {
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(st.NextSteps) == 0 {
		return nil, nil
	}
	candidates, err := s.repo.GetMany(ctx, st.NextSteps)
	if err != nil {
		return nil, err
	}
	for _, nextID := range st.NextSteps {
		if c, ok := candidates[nextID]; ok && c.IsActive {
			return c, nil
		}
	}
	return nil, nil
}

func (s *Service) checkNextSteps(ctx context.Context, self uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if id == self {
			return apperr.InvalidInput("a station cannot list itself in next_steps")
		}
	}
	found, err := s.repo.GetMany(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return apperr.InvalidStation(id.String())
		}
	}
	return nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.InvalidInput("%s", err.Error())
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return apperr.InvalidInput("%s is required", field).WithDetail("field", field)
	case "min", "max":
		return apperr.InvalidInput("%s must be between 1 and %s characters", field, fe.Param()).WithDetail("field", field)
	case "gt":
		return apperr.InvalidInput("%s must be a positive integer", field).WithDetail("field", field)
	}
	return apperr.InvalidInput("%s is invalid", field).WithDetail("field", field)
}

package visit

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/ehr/journey/internal/domain/station"
	"github.com/ehr/journey/internal/platform/apperr"
	"github.com/ehr/journey/internal/platform/db"
)

// StationLookup resolves the station a new visit starts at.
type StationLookup interface {
	GetStation(ctx context.Context, id uuid.UUID) (*station.Station, error)
	DefaultStartStation(ctx context.Context) (*station.Station, error)
}

// StepSeeder writes the opening waiting step of a new visit inside the
// caller's transaction.
type StepSeeder interface {
	SeedFirstStep(ctx context.Context, visitID, stationID uuid.UUID, at time.Time) error
}

type Service struct {
	repo      Repository
	stations  StationLookup
	seeder    StepSeeder
	tx        db.TxRunner
	portalURL string
	hashCost  int
	validate  *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, stations StationLookup, seeder StepSeeder, tx db.TxRunner, portalURL string, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		stations:  stations,
		seeder:    seeder,
		tx:        tx,
		portalURL: strings.TrimRight(portalURL, "/"),
		hashCost:  bcrypt.DefaultCost,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With().Str("component", "visit").Logger(),
		now:       time.Now,
	}
}

// QRPayload is the tracking link encoded in the visit's QR code.
func (s *Service) QRPayload(vn string) string {
	return s.portalURL + "/track?vn=" + url.QueryEscape(vn)
}

// CreateVisit registers a visit and queues it at the requested station, or at
// the default start station when none is given.
func (s *Service) CreateVisit(ctx context.Context, in CreateInput) (*Visit, error) {
	in.VN = strings.TrimSpace(in.VN)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	start, err := s.resolveStart(ctx, in.StartStationID)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.HNSecret), s.hashCost)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := s.now().UTC()
	v := &Visit{
		ID:           uuid.New(),
		VN:           in.VN,
		HNSecretHash: string(hash),
		StartTime:    now,
		QRPayload:    s.QRPayload(in.VN),
	}
	if start != nil {
		v.CurrentStepID = &start.ID
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, v); err != nil {
			return err
		}
		if start == nil {
			return nil
		}
		return s.seeder.SeedFirstStep(ctx, v.ID, start.ID, now)
	})
	if err != nil {
		return nil, err
	}

	ev := s.logger.Info().Str("visit_id", v.ID.String()).Str("vn", v.VN)
	if start != nil {
		ev = ev.Str("station", start.Name)
	}
	ev.Msg("visit created")
	return v, nil
}

func (s *Service) resolveStart(ctx context.Context, id *uuid.UUID) (*station.Station, error) {
	if id == nil {
		return s.stations.DefaultStartStation(ctx)
	}
	st, err := s.stations.GetStation(ctx, *id)
	if apperr.Is(err, apperr.CodeNotFound) {
		return nil, apperr.InvalidStation(id.String())
	}
	if err != nil {
		return nil, err
	}
	if !st.IsActive {
		return nil, apperr.InvalidStation(id.String())
	}
	return st, nil
}

// VerifyCredential returns the visit for vn when secret matches its stored
// hash. An unknown vn and a wrong secret fail identically.
func (s *Service) VerifyCredential(ctx context.Context, vn, secret string) (*Visit, error) {
	v, err := s.repo.GetByVN(ctx, strings.TrimSpace(vn))
	if apperr.Is(err, apperr.CodeNotFound) {
		return nil, apperr.NotFound("visit", "")
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(v.HNSecretHash), []byte(secret)); err != nil {
		return nil, apperr.NotFound("visit", "")
	}
	return v, nil
}

func (s *Service) RegisterPushToken(ctx context.Context, id uuid.UUID, token string) error {
	in := PushTokenInput{Token: strings.TrimSpace(token)}
	if err := s.validate.Struct(in); err != nil {
		return validationError(err)
	}
	if err := s.repo.SetPushToken(ctx, id, in.Token); err != nil {
		return err
	}
	s.logger.Debug().Str("visit_id", id.String()).Msg("push token registered")
	return nil
}

func (s *Service) GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.repo.GetByID(ctx, id)
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
	case "max":
		return apperr.InvalidInput("%s must be at most %s characters", field, fe.Param()).WithDetail("field", field)
	}
	return apperr.InvalidInput("%s is invalid", field).WithDetail("field", field)
}

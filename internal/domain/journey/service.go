package journey

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehr/journey/internal/domain/station"
	"github.com/ehr/journey/internal/domain/visit"
	"github.com/ehr/journey/internal/platform/apperr"
	"github.com/ehr/journey/internal/platform/auth"
	"github.com/ehr/journey/internal/platform/db"
	"github.com/ehr/journey/internal/platform/metrics"
	"github.com/ehr/journey/internal/platform/notification"
	"github.com/ehr/journey/internal/platform/tracing"
)

// VisitStore is the slice of the visit registry the engine writes through.
type VisitStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*visit.Visit, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*visit.Visit, error)
	SetCurrentStep(ctx context.Context, id uuid.UUID, stationID *uuid.UUID) error
}

// StationReader is the catalog read the engine depends on.
type StationReader interface {
	GetStation(ctx context.Context, id uuid.UUID) (*station.Station, error)
	GetStations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*station.Station, error)
}

// Service is the progression engine and the read side over the journey ledger.
// It is the only writer of journey_step rows and of the visit's current step.
type Service struct {
	steps     Repository
	visits    VisitStore
	stations  StationReader
	tx        db.TxRunner
	notifier  notification.Notifier
	templates *notification.TemplateEngine
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(steps Repository, visits VisitStore, stations StationReader, tx db.TxRunner,
	notifier notification.Notifier, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = notification.Discard{}
	}
	return &Service{
		steps:     steps,
		visits:    visits,
		stations:  stations,
		tx:        tx,
		notifier:  notifier,
		templates: notification.NewTemplateEngine(),
		metrics:   m,
		logger:    logger.With().Str("component", "journey").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Templates exposes the message templates so a site can localize them.
func (s *Service) Templates() *notification.TemplateEngine {
	return s.templates
}

// op is one engine operation against a single locked visit.
type op struct {
	svc    *Service
	ctx    context.Context
	now    time.Time
	visit  *visit.Visit
	steps  []*Step
	outbox []notification.Message
}

// mutate runs fn inside a transaction holding the visit row lock. The visit's
// steps are loaded after the lock is taken, so fn sees every committed write.
// Messages fn queues are dispatched only once the transaction has committed.
func (s *Service) mutate(ctx context.Context, name string, visitID uuid.UUID, fn func(o *op) error) error {
	started := time.Now()
	ctx, span := tracing.Tracer().Start(ctx, "journey."+name,
		trace.WithAttributes(attribute.String("visit.id", visitID.String())))
	defer span.End()

	var outbox []notification.Message
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		v, err := s.visits.LockForUpdate(ctx, visitID)
		if err != nil {
			return err
		}
		steps, err := s.steps.ListByVisit(ctx, visitID)
		if err != nil {
			return err
		}
		sortSteps(steps)

		o := &op{svc: s, ctx: ctx, now: s.now(), visit: v, steps: steps}
		if err := fn(o); err != nil {
			return err
		}
		if err := o.ensurePointer(); err != nil {
			return err
		}
		outbox = o.outbox
		return nil
	})
	if err != nil {
		if _, ok := apperr.As(err); !ok {
			err = apperr.Internal(err)
		}
	}
	tracing.RecordError(span, err)
	s.metrics.RecordTransition(name, err, time.Since(started))
	if err != nil {
		ev := s.logger.Warn()
		if apperr.Is(err, apperr.CodeInternal) {
			ev = s.logger.Error()
		}
		ev.Err(err).Str("op", name).Str("visit_id", visitID.String()).Msg("journey operation failed")
		return err
	}

	for _, msg := range outbox {
		s.notifier.Notify(ctx, msg)
	}
	return nil
}

// mutateStep resolves the visit of stepID and runs fn against the step as
// re-read under the visit lock.
func (s *Service) mutateStep(ctx context.Context, name string, stepID uuid.UUID, fn func(o *op, st *Step) error) error {
	started := time.Now()
	st, err := s.steps.GetByID(ctx, stepID)
	if err != nil {
		if _, ok := apperr.As(err); !ok {
			err = apperr.Internal(err)
		}
		s.metrics.RecordTransition(name, err, time.Since(started))
		return err
	}
	return s.mutate(ctx, name, st.VisitID, func(o *op) error {
		locked := o.find(stepID)
		if locked == nil {
			return apperr.NotFound("journey step", stepID.String())
		}
		return fn(o, locked)
	})
}

func (o *op) find(id uuid.UUID) *Step {
	for _, s := range o.steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (o *op) index(id uuid.UUID) int {
	for i, s := range o.steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// inProgress returns the first in_progress step other than except.
func (o *op) inProgress(except *Step) *Step {
	for _, s := range o.steps {
		if s != except && s.Status == StatusInProgress {
			return s
		}
	}
	return nil
}

func (o *op) station(id uuid.UUID) (*station.Station, error) {
	return o.svc.stations.GetStation(o.ctx, id)
}

// authorize checks the actor may act on steps at st.
func (o *op) authorize(a auth.Actor, st *station.Station) error {
	if a.CoversStation(st.Department, st.Name) {
		return nil
	}
	return apperr.Forbidden("not permitted to act on " + st.Name)
}

func (o *op) save(s *Step, by string) error {
	if by != "" {
		s.UpdatedBy = &by
	}
	return o.svc.steps.Update(o.ctx, s)
}

func (o *op) insert(s *Step) error {
	if err := o.svc.steps.Create(o.ctx, s); err != nil {
		return err
	}
	o.steps = append(o.steps, s)
	sortSteps(o.steps)
	return nil
}

// demoteOthers forces every in_progress step except keep back to waiting.
func (o *op) demoteOthers(keep *Step, by string) error {
	for _, s := range o.steps {
		if s == keep || s.Status != StatusInProgress {
			continue
		}
		s.Status = StatusWaiting
		s.EndTime = nil
		if err := o.save(s, by); err != nil {
			return err
		}
	}
	return nil
}

// point moves the visit's current step to stationID, or clears it when nil.
func (o *op) point(stationID *uuid.UUID) error {
	cur := o.visit.CurrentStepID
	if (cur == nil && stationID == nil) || (cur != nil && stationID != nil && *cur == *stationID) {
		return nil
	}
	if err := o.svc.visits.SetCurrentStep(o.ctx, o.visit.ID, stationID); err != nil {
		return err
	}
	o.visit.CurrentStepID = stationID
	return nil
}

func (o *op) pointAt(s *Step) error {
	id := s.StationID
	return o.point(&id)
}

// retarget points the visit at s's station, unless another step of the visit
// is in progress, in which case the pointer follows that step.
func (o *op) retarget(s *Step) error {
	if other := o.inProgress(s); other != nil {
		return o.pointAt(other)
	}
	return o.pointAt(s)
}

// rederive points the visit at CurrentStep, or clears the pointer.
func (o *op) rederive() error {
	if cur := CurrentStep(o.steps); cur != nil {
		return o.pointAt(cur)
	}
	return o.point(nil)
}

// ensurePointer re-derives the pointer when it no longer names a station with
// an active step, or is null while active steps remain.
func (o *op) ensurePointer() error {
	cur := o.visit.CurrentStepID
	if cur != nil && hasActiveAt(o.steps, *cur) {
		return nil
	}
	if cur == nil && CurrentStep(o.steps) == nil {
		return nil
	}
	return o.rederive()
}

// queue renders a template and queues the message for after commit.
func (o *op) queue(event, templateID string, s *Step, st *station.Station, data map[string]string) {
	title, body, err := o.svc.templates.Render(templateID, data)
	if err != nil {
		o.svc.logger.Warn().Err(err).Str("template", templateID).Msg("notification template failed")
		return
	}
	stepID := s.ID
	o.outbox = append(o.outbox, notification.Message{
		Event:      event,
		VisitID:    o.visit.ID,
		VN:         o.visit.VN,
		StepID:     &stepID,
		Department: st.Department,
		Title:      title,
		Body:       body,
		TenantID:   db.TenantFromContext(o.ctx),
		OccurredAt: o.now,
		PushToken:  o.visit.PushTokenValue(),
	})
}

func stationData(st *station.Station) map[string]string {
	var where []string
	if st.Location != nil && *st.Location != "" {
		where = append(where, *st.Location)
	}
	if st.Floor != nil && *st.Floor != "" {
		where = append(where, "floor "+*st.Floor)
	}
	return map[string]string{
		"station":  st.Name,
		"location": strings.Join(where, ", "),
	}
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// cleanNotes trims notes and treats a blank note as none.
func cleanNotes(n *string) *string {
	if n == nil {
		return nil
	}
	t := strings.TrimSpace(*n)
	if t == "" {
		return nil
	}
	return &t
}

func notesEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

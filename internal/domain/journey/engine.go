package journey

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/journey/internal/domain/station"
	"github.com/ehr/journey/internal/platform/apperr"
	"github.com/ehr/journey/internal/platform/auth"
	"github.com/ehr/journey/internal/platform/notification"
)

func requireAdmin(a auth.Actor) error {
	if a.IsAdmin() {
		return nil
	}
	return apperr.Forbidden("admin role required")
}

func copyStep(s *Step) *Step {
	cp := *s
	return &cp
}

// StartStep moves a waiting step to in_progress and points the visit at its
// station. It refuses to start a second step while one is in progress.
func (s *Service) StartStep(ctx context.Context, a auth.Actor, stepID uuid.UUID) (*Step, error) {
	var out *Step
	err := s.mutateStep(ctx, "start", stepID, func(o *op, st *Step) error {
		stn, err := o.station(st.StationID)
		if err != nil {
			return err
		}
		if err := o.authorize(a, stn); err != nil {
			return err
		}
		if st.Status != StatusWaiting {
			return apperr.InvalidInput("only waiting steps can be started, step is %s", st.Status)
		}
		if other := o.inProgress(st); other != nil {
			return apperr.InvalidInput("another step is already in progress").
				WithDetail("step_id", other.ID.String())
		}

		st.Status = StatusInProgress
		st.EndTime = nil
		if err := o.save(st, a.UserID); err != nil {
			return err
		}
		if err := o.pointAt(st); err != nil {
			return err
		}
		o.queue(notification.EventStepStarted, notification.TemplateProceed, st, stn, stationData(stn))
		out = copyStep(st)
		return nil
	})
	return out, err
}

// CompleteStep closes the visit's in_progress step. With a next station it
// queues the patient there under a fresh daily queue number.
func (s *Service) CompleteStep(ctx context.Context, a auth.Actor, visitID uuid.UUID, in CompleteInput) (*CompleteResult, error) {
	var out *CompleteResult
	err := s.mutate(ctx, "complete", visitID, func(o *op) error {
		cur := o.inProgress(nil)
		if cur == nil {
			return apperr.InvalidInput("visit has no step in progress")
		}
		from, err := o.station(cur.StationID)
		if err != nil {
			return err
		}
		if err := o.authorize(a, from); err != nil {
			return err
		}

		next, err := s.activeStation(o, in.NextStationID)
		if err != nil {
			return err
		}

		notes := cleanNotes(in.Notes)
		cur.Status = StatusCompleted
		end := o.now
		cur.EndTime = &end
		if notes != nil {
			cur.Notes = notes
		}
		if err := o.save(cur, a.UserID); err != nil {
			return err
		}
		out = &CompleteResult{Completed: copyStep(cur)}

		if next != nil {
			q, err := s.steps.NextQueueNumber(o.ctx, next.ID, dayStart(o.now))
			if err != nil {
				return err
			}
			ns := &Step{
				ID:          uuid.New(),
				VisitID:     o.visit.ID,
				StationID:   next.ID,
				Status:      StatusWaiting,
				StartTime:   o.now,
				QueueNumber: &q,
				CreatedAt:   o.now,
			}
			if a.UserID != "" {
				by := a.UserID
				ns.UpdatedBy = &by
			}
			if err := o.insert(ns); err != nil {
				return err
			}
			if err := o.pointAt(ns); err != nil {
				return err
			}
			data := stationData(next)
			data["from"] = from.Name
			data["queue"] = strconv.Itoa(q)
			o.queue(notification.EventStepTransferred, notification.TemplateTransfer, ns, next, data)
			out.Next = copyStep(ns)
		} else {
			if err := o.rederive(); err != nil {
				return err
			}
			o.queue(notification.EventStepCompleted, notification.TemplateCompleted, cur, from, stationData(from))
		}

		if notes != nil {
			data := stationData(from)
			data["notes"] = *notes
			o.queue(notification.EventNoteUpdated, notification.TemplateNoteUpdated, cur, from, data)
		}
		return nil
	})
	return out, err
}

// activeStation resolves an optional transfer target, which must exist and be
// active.
func (s *Service) activeStation(o *op, id *uuid.UUID) (*station.Station, error) {
	if id == nil {
		return nil, nil
	}
	st, err := o.station(*id)
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

// RevertStep sends a step back to in_progress or waiting. Reverting to
// in_progress demotes every other in_progress step of the visit to waiting.
func (s *Service) RevertStep(ctx context.Context, a auth.Actor, stepID uuid.UUID, target string) (*Step, error) {
	to, err := ParseStatus(target)
	if err != nil {
		return nil, err
	}
	if !to.Active() {
		return nil, apperr.InvalidInput("steps can only be reverted to waiting or in_progress")
	}

	var out *Step
	err = s.mutateStep(ctx, "revert", stepID, func(o *op, st *Step) error {
		stn, err := o.station(st.StationID)
		if err != nil {
			return err
		}
		if err := o.authorize(a, stn); err != nil {
			return err
		}
		if st.Status == StatusSkipped {
			return apperr.InvalidInput("skipped steps cannot be reverted")
		}
		if to == StatusWaiting && st.Status == StatusWaiting {
			return apperr.InvalidInput("step is already waiting")
		}

		if to == StatusInProgress {
			if err := o.demoteOthers(st, a.UserID); err != nil {
				return err
			}
		}
		st.Status = to
		st.EndTime = nil
		if err := o.save(st, a.UserID); err != nil {
			return err
		}
		if err := o.retarget(st); err != nil {
			return err
		}

		data := stationData(stn)
		data["status"] = statusLabel(to)
		o.queue(notification.EventStepReverted, notification.TemplateReverted, st, stn, data)
		out = copyStep(st)
		return nil
	})
	return out, err
}

// EditStep rewrites fields of a step. Admin only.
func (s *Service) EditStep(ctx context.Context, a auth.Actor, stepID uuid.UUID, p StepPatch) (*Step, error) {
	if err := requireAdmin(a); err != nil {
		return nil, err
	}
	var newStatus Status
	if p.Status != nil {
		st, err := ParseStatus(*p.Status)
		if err != nil {
			return nil, err
		}
		newStatus = st
	}
	if p.QueueNumber != nil && *p.QueueNumber < 1 && !p.ClearQueueNumber {
		return nil, apperr.InvalidInput("queue_number must be a positive integer")
	}

	var out *Step
	err := s.mutateStep(ctx, "edit", stepID, func(o *op, st *Step) error {
		stn, err := o.station(st.StationID)
		if err != nil {
			return err
		}
		oldNotes := st.Notes

		if newStatus != "" {
			st.Status = newStatus
		}
		if p.StartTime != nil {
			st.StartTime = p.StartTime.UTC()
		}
		switch {
		case p.ClearEndTime:
			st.EndTime = nil
		case p.EndTime != nil:
			t := p.EndTime.UTC()
			st.EndTime = &t
		}
		switch {
		case p.ClearQueueNumber:
			st.QueueNumber = nil
		case p.QueueNumber != nil:
			q := *p.QueueNumber
			st.QueueNumber = &q
		}
		switch {
		case p.ClearNotes:
			st.Notes = nil
		case p.Notes != nil:
			st.Notes = cleanNotes(p.Notes)
		}
		st.normalizeEndTime(o.now)

		if st.Status == StatusInProgress {
			if err := o.demoteOthers(st, a.UserID); err != nil {
				return err
			}
		}
		if err := o.save(st, a.UserID); err != nil {
			return err
		}
		sortSteps(o.steps)
		if st.Status.Active() {
			if err := o.retarget(st); err != nil {
				return err
			}
		}

		o.queueNoteChange(st, stn, oldNotes)
		out = copyStep(st)
		return nil
	})
	return out, err
}

func (o *op) queueNoteChange(st *Step, stn *station.Station, old *string) {
	if notesEqual(old, st.Notes) {
		return
	}
	data := stationData(stn)
	if st.Notes == nil {
		o.queue(notification.EventNoteRemoved, notification.TemplateNoteRemoved, st, stn, data)
		return
	}
	data["notes"] = *st.Notes
	o.queue(notification.EventNoteUpdated, notification.TemplateNoteUpdated, st, stn, data)
}

// CreateStep inserts a step out of band, typically to backfill a missed
// station. Admin only; inactive stations are accepted.
func (s *Service) CreateStep(ctx context.Context, a auth.Actor, visitID uuid.UUID, in CreateStepInput) (*Step, error) {
	if err := requireAdmin(a); err != nil {
		return nil, err
	}
	status, err := ParseStatus(in.Status)
	if err != nil {
		return nil, err
	}
	if in.StationID == uuid.Nil {
		return nil, apperr.InvalidInput("station_id is required").WithDetail("field", "station_id")
	}
	if in.QueueNumber != nil && *in.QueueNumber < 1 {
		return nil, apperr.InvalidInput("queue_number must be a positive integer")
	}

	var out *Step
	err = s.mutate(ctx, "create", visitID, func(o *op) error {
		stn, err := o.station(in.StationID)
		if apperr.Is(err, apperr.CodeNotFound) {
			return apperr.InvalidStation(in.StationID.String())
		}
		if err != nil {
			return err
		}

		st := &Step{
			ID:          uuid.New(),
			VisitID:     o.visit.ID,
			StationID:   stn.ID,
			Status:      status,
			StartTime:   o.now,
			QueueNumber: in.QueueNumber,
			Notes:       cleanNotes(in.Notes),
			CreatedAt:   o.now,
		}
		if in.StartTime != nil {
			st.StartTime = in.StartTime.UTC()
		}
		if in.EndTime != nil {
			t := in.EndTime.UTC()
			st.EndTime = &t
		}
		if a.UserID != "" {
			by := a.UserID
			st.UpdatedBy = &by
		}
		st.normalizeEndTime(o.now)

		if st.Status == StatusInProgress {
			if err := o.demoteOthers(st, a.UserID); err != nil {
				return err
			}
		}
		if err := o.insert(st); err != nil {
			return err
		}
		if st.Status.Active() {
			if err := o.retarget(st); err != nil {
				return err
			}
		}

		data := stationData(stn)
		data["status"] = statusLabel(st.Status)
		o.queue(notification.EventStepCreated, notification.TemplateStepAdded, st, stn, data)
		out = copyStep(st)
		return nil
	})
	return out, err
}

// DeleteStep removes a step. When it held the visit's current station the
// pointer is re-derived from what remains. Admin only.
func (s *Service) DeleteStep(ctx context.Context, a auth.Actor, stepID uuid.UUID) error {
	if err := requireAdmin(a); err != nil {
		return err
	}
	return s.mutateStep(ctx, "delete", stepID, func(o *op, st *Step) error {
		if err := s.steps.Delete(o.ctx, st.ID); err != nil {
			return err
		}
		i := o.index(st.ID)
		o.steps = append(o.steps[:i], o.steps[i+1:]...)

		cur := o.visit.CurrentStepID
		if st.Status.Active() && cur != nil && *cur == st.StationID {
			return o.rederive()
		}
		return nil
	})
}

// ReorderSteps swaps the start times of two adjacent steps of one visit.
// Nothing else about either step changes. Admin only.
func (s *Service) ReorderSteps(ctx context.Context, a auth.Actor, in ReorderInput) error {
	if err := requireAdmin(a); err != nil {
		return err
	}
	if in.StepA == uuid.Nil || in.StepB == uuid.Nil || in.StepA == in.StepB {
		return apperr.InvalidInput("two distinct step ids are required")
	}
	first, err := s.steps.GetByID(ctx, in.StepA)
	if err != nil {
		return err
	}
	second, err := s.steps.GetByID(ctx, in.StepB)
	if err != nil {
		return err
	}
	if first.VisitID != second.VisitID {
		return apperr.InvalidInput("steps belong to different visits")
	}

	return s.mutate(ctx, "reorder", first.VisitID, func(o *op) error {
		i, j := o.index(in.StepA), o.index(in.StepB)
		if i < 0 {
			return apperr.NotFound("journey step", in.StepA.String())
		}
		if j < 0 {
			return apperr.NotFound("journey step", in.StepB.String())
		}
		if i-j != 1 && j-i != 1 {
			return apperr.InvalidInput("steps are not adjacent")
		}
		return o.swap(o.steps[i], o.steps[j])
	})
}

// MoveStep swaps a step with its neighbour in the given direction. Moving
// past either end is a no-op. Admin only.
func (s *Service) MoveStep(ctx context.Context, a auth.Actor, stepID uuid.UUID, dir Direction) error {
	if err := requireAdmin(a); err != nil {
		return err
	}
	if dir != DirectionUp && dir != DirectionDown {
		return apperr.InvalidInput("direction must be up or down").WithDetail("field", "direction")
	}
	return s.mutateStep(ctx, "move", stepID, func(o *op, st *Step) error {
		i := o.index(st.ID)
		j := i + 1
		if dir == DirectionUp {
			j = i - 1
		}
		if j < 0 || j >= len(o.steps) {
			return nil
		}
		return o.swap(st, o.steps[j])
	})
}

func (o *op) swap(x, y *Step) error {
	x.StartTime, y.StartTime = y.StartTime, x.StartTime
	if err := o.svc.steps.SetStartTime(o.ctx, x.ID, x.StartTime); err != nil {
		return err
	}
	if err := o.svc.steps.SetStartTime(o.ctx, y.ID, y.StartTime); err != nil {
		return err
	}
	sortSteps(o.steps)
	return nil
}

// SeedFirstStep writes the opening waiting step of a new visit. It runs in the
// caller's transaction, so it takes no visit lock of its own.
func (s *Service) SeedFirstStep(ctx context.Context, visitID, stationID uuid.UUID, at time.Time) error {
	q, err := s.steps.NextQueueNumber(ctx, stationID, dayStart(at))
	if err != nil {
		return err
	}
	return s.steps.Create(ctx, &Step{
		ID:          uuid.New(),
		VisitID:     visitID,
		StationID:   stationID,
		Status:      StatusWaiting,
		StartTime:   at,
		QueueNumber: &q,
		CreatedAt:   at,
	})
}

func statusLabel(s Status) string {
	switch s {
	case StatusInProgress:
		return "in progress"
	case StatusWaiting:
		return "waiting"
	case StatusCompleted:
		return "completed"
	case StatusSkipped:
		return "skipped"
	}
	return string(s)
}

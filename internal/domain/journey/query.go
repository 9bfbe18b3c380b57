package journey

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/journey/internal/domain/station"
	"github.com/ehr/journey/internal/platform/apperr"
	"github.com/ehr/journey/internal/platform/auth"
)

// GetVisitStatus returns the visit, its current step and its timeline. When
// department is set (or the actor is department staff) the department-scoped
// current step is included as well. Reads take no lock and may be stale.
func (s *Service) GetVisitStatus(ctx context.Context, a auth.Actor, visitID uuid.UUID, department string) (*VisitStatus, error) {
	if a.Role == auth.RolePatient && a.UserID != visitID.String() {
		return nil, apperr.Forbidden("patients may only view their own visit")
	}
	v, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	steps, err := s.steps.ListByVisit(ctx, visitID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	sortSteps(steps)

	ids := make([]uuid.UUID, 0, len(steps))
	for _, st := range steps {
		ids = append(ids, st.StationID)
	}
	stations, err := s.stations.GetStations(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	out := &VisitStatus{Visit: v, Timeline: make([]TimelineEntry, 0, len(steps))}
	index := make(map[uuid.UUID]int, len(steps))
	for i, st := range steps {
		index[st.ID] = i
		out.Timeline = append(out.Timeline, timelineEntry(st, stations[st.StationID]))
	}
	if cur := CurrentStep(steps); cur != nil {
		out.CurrentStep = &out.Timeline[index[cur.ID]]
	}

	if department == "" && a.Role == auth.RoleStaff {
		department = a.Department
	}
	if department = strings.TrimSpace(department); department != "" {
		if cur := CurrentStepForDepartment(steps, stations, department); cur != nil {
			out.DepartmentStep = &out.Timeline[index[cur.ID]]
		}
	}
	return out, nil
}

func timelineEntry(st *Step, stn *station.Station) TimelineEntry {
	e := TimelineEntry{Step: *st}
	if stn != nil {
		e.StationName = stn.Name
		e.Department = stn.Department
		e.Location = stn.Location
		e.Floor = stn.Floor
	}
	if st.EndTime != nil {
		m := minutesBetween(st.StartTime, *st.EndTime)
		e.DurationMinutes = &m
	}
	return e
}

func minutesBetween(from, to time.Time) int {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

// GetDepartmentQueue lists the steps at stations matching department in
// start_time order. Completed steps are included only on request, and only
// those finished today.
func (s *Service) GetDepartmentQueue(ctx context.Context, a auth.Actor, department string, includeCompleted bool) (*DepartmentQueue, error) {
	department = strings.TrimSpace(department)
	if department == "" {
		return nil, apperr.InvalidInput("department is required")
	}
	if !a.CoversStation(department, department) {
		return nil, apperr.Forbidden("not permitted to view " + department)
	}

	now := s.now()
	var since *time.Time
	if includeCompleted {
		t := dayStart(now)
		since = &t
	}
	rows, err := s.steps.DepartmentSteps(ctx, department, since)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	q := &DepartmentQueue{Department: department, Entries: make([]QueueEntry, 0, len(rows))}
	for _, r := range rows {
		e := QueueEntry{
			StepID:      r.ID,
			VisitID:     r.VisitID,
			VN:          r.VN,
			StationID:   r.StationID,
			StationName: r.StationName,
			Status:      r.Status,
			QueueNumber: r.QueueNumber,
			StartTime:   r.StartTime,
			EndTime:     r.EndTime,
			Notes:       r.Notes,
		}
		switch r.Status {
		case StatusWaiting:
			q.Waiting++
			pos := q.Waiting
			e.Position = &pos
			e.WaitingMinutes = minutesBetween(r.StartTime, now)
		case StatusInProgress:
			q.InProgress++
			e.WaitingMinutes = minutesBetween(r.StartTime, now)
		case StatusCompleted:
			if r.EndTime != nil {
				e.WaitingMinutes = minutesBetween(r.StartTime, *r.EndTime)
			}
		}
		q.Entries = append(q.Entries, e)
	}
	return q, nil
}

// InProgressStation returns the station of the visit's in_progress step, or
// nil. Used to resolve auto-advance before completing.
func (s *Service) InProgressStation(ctx context.Context, visitID uuid.UUID) (*uuid.UUID, error) {
	steps, err := s.steps.ListByVisit(ctx, visitID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	sortSteps(steps)
	for _, st := range steps {
		if st.Status == StatusInProgress {
			id := st.StationID
			return &id, nil
		}
	}
	return nil, nil
}

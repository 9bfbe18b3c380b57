package journey

import (
	"bytes"
	"sort"

	"github.com/google/uuid"

	"github.com/ehr/journey/internal/domain/station"
)

// stepLess orders steps by start_time, then created_at, then id.
func stepLess(a, b *Step) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.Before(b.StartTime)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

func sortSteps(steps []*Step) {
	sort.SliceStable(steps, func(i, j int) bool { return stepLess(steps[i], steps[j]) })
}

// CurrentStep is the step a visit is at: its in_progress step, otherwise its
// earliest waiting step. With inconsistent data holding several in_progress
// steps the earliest wins. Returns nil when no step is active.
func CurrentStep(steps []*Step) *Step {
	var inProgress, waiting *Step
	for _, s := range steps {
		switch s.Status {
		case StatusInProgress:
			if inProgress == nil || stepLess(s, inProgress) {
				inProgress = s
			}
		case StatusWaiting:
			if waiting == nil || stepLess(s, waiting) {
				waiting = s
			}
		}
	}
	if inProgress != nil {
		return inProgress
	}
	return waiting
}

// CurrentStepForDepartment applies CurrentStep to the steps whose station's
// department or name equals department.
func CurrentStepForDepartment(steps []*Step, stations map[uuid.UUID]*station.Station, department string) *Step {
	var scoped []*Step
	for _, s := range steps {
		if st, ok := stations[s.StationID]; ok && st.Covers(department) {
			scoped = append(scoped, s)
		}
	}
	return CurrentStep(scoped)
}

// hasActiveAt reports whether any step at stationID is still active.
func hasActiveAt(steps []*Step, stationID uuid.UUID) bool {
	for _, s := range steps {
		if s.StationID == stationID && s.Status.Active() {
			return true
		}
	}
	return false
}

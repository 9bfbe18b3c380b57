package journey

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/journey/internal/domain/station"
)

func TestCurrentStep(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	mk := func(status Status, offset int) *Step {
		return &Step{ID: uuid.New(), Status: status, StartTime: base.Add(time.Duration(offset) * time.Minute), CreatedAt: base}
	}

	tests := []struct {
		name  string
		steps []*Step
		want  int
	}{
		{"empty", nil, -1},
		{"only closed", []*Step{mk(StatusCompleted, 0), mk(StatusSkipped, 1)}, -1},
		{"earliest waiting", []*Step{mk(StatusCompleted, 0), mk(StatusWaiting, 5), mk(StatusWaiting, 2)}, 2},
		{"in progress beats earlier waiting", []*Step{mk(StatusWaiting, 0), mk(StatusInProgress, 9)}, 1},
		{"earliest of several in progress", []*Step{mk(StatusInProgress, 4), mk(StatusInProgress, 3)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CurrentStep(tt.steps)
			if tt.want < 0 {
				if got != nil {
					t.Errorf("expected nil, got %+v", got)
				}
				return
			}
			if got != tt.steps[tt.want] {
				t.Errorf("expected step %d", tt.want)
			}
		})
	}
}

func TestCurrentStep_TieBreaks(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	older := &Step{ID: uuid.MustParse("ffffffff-0000-0000-0000-000000000000"), Status: StatusWaiting, StartTime: at, CreatedAt: at}
	newer := &Step{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Status: StatusWaiting, StartTime: at, CreatedAt: at.Add(time.Second)}
	if got := CurrentStep([]*Step{newer, older}); got != older {
		t.Error("equal start times should fall back to created_at")
	}

	lowID := &Step{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Status: StatusWaiting, StartTime: at, CreatedAt: at}
	highID := &Step{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), Status: StatusWaiting, StartTime: at, CreatedAt: at}
	if got := CurrentStep([]*Step{highID, lowID}); got != lowID {
		t.Error("full ties should fall back to id")
	}
}

func TestCurrentStepForDepartment(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	vitals := &station.Station{ID: uuid.New(), Name: "Vitals", Department: "Nursing"}
	doctor := &station.Station{ID: uuid.New(), Name: "Doctor", Department: "OPD"}
	stations := map[uuid.UUID]*station.Station{vitals.ID: vitals, doctor.ID: doctor}

	atDoctor := &Step{ID: uuid.New(), StationID: doctor.ID, Status: StatusInProgress, StartTime: at}
	atVitals := &Step{ID: uuid.New(), StationID: vitals.ID, Status: StatusWaiting, StartTime: at.Add(time.Minute)}
	steps := []*Step{atDoctor, atVitals}

	if got := CurrentStep(steps); got != atDoctor {
		t.Error("visit-scoped current step should be the in_progress step")
	}
	if got := CurrentStepForDepartment(steps, stations, "nursing"); got != atVitals {
		t.Error("department view should only see nursing steps")
	}
	if got := CurrentStepForDepartment(steps, stations, "Vitals"); got != atVitals {
		t.Error("department label may name the station")
	}
	if got := CurrentStepForDepartment(steps, stations, "Pharmacy"); got != nil {
		t.Error("expected nothing for an unrelated department")
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"waiting", "in_progress", "completed", "skipped"} {
		if _, err := ParseStatus(s); err != nil {
			t.Errorf("%s: unexpected error %v", s, err)
		}
	}
	for _, s := range []string{"", "cancelled", "IN_PROGRESS"} {
		if _, err := ParseStatus(s); err == nil {
			t.Errorf("%q: expected error", s)
		}
	}
}

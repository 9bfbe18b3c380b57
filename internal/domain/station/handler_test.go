package station

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/journey/internal/platform/apperr"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler
	return NewHandler(svc), e
}

func TestCreateStationHandler(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Vitals","department":"Nursing","estimated_minutes":15}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateStation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var got Station
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.EstimatedMinutes != 15 || got.Name != "Vitals" {
		t.Errorf("unexpected body: %+v", got)
	}
}

func TestCreateStationHandler_ValidationError(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"department":"Nursing"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.CreateStation(c)
	if !apperr.Is(err, apperr.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestGetStationHandler_InvalidAndMissing(t *testing.T) {
	h, e := newTestHandler()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	if err := h.GetStation(c); !apperr.Is(err, apperr.CodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	if err := h.GetStation(c); !apperr.Is(err, apperr.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestListStationsHandler(t *testing.T) {
	h, e := newTestHandler()
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	h.svc.SeedDefaults(ctx)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/stations?limit=2", nil), rec)
	if err := h.ListStations(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data    []Station `json:"data"`
		Total   int       `json:"total"`
		HasMore bool      `json:"has_more"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 6 || len(body.Data) != 2 || !body.HasMore {
		t.Errorf("unexpected page: total=%d len=%d more=%v", body.Total, len(body.Data), body.HasMore)
	}
	if body.Data[0].Name != "Registration" {
		t.Errorf("expected display order, got %s first", body.Data[0].Name)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/stations?active_only=maybe", nil), httptest.NewRecorder())
	if err := h.ListStations(c); !apperr.Is(err, apperr.CodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestSuggestNextStationHandler(t *testing.T) {
	h, e := newTestHandler()
	seeded, _ := h.svc.SeedDefaults(httptest.NewRequest(http.MethodGet, "/", nil).Context())

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(seeded[0].ID.String())
	if err := h.SuggestNextStation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Station
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ID != seeded[1].ID {
		t.Errorf("expected %s, got %s", seeded[1].Name, got.Name)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(seeded[5].ID.String())
	if err := h.SuggestNextStation(c); !apperr.Is(err, apperr.CodeNotFound) {
		t.Errorf("expected NOT_FOUND at end of flow, got %v", err)
	}
}

func TestDeactivateStationHandler(t *testing.T) {
	h, e := newTestHandler()
	seeded, _ := h.svc.SeedDefaults(httptest.NewRequest(http.MethodGet, "/", nil).Context())

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(seeded[2].ID.String())
	if err := h.DeactivateStation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"not found", NotFound("visit", "abc"), CodeNotFound, http.StatusNotFound},
		{"invalid input", InvalidInput("bad status %q", "x"), CodeInvalidInput, http.StatusBadRequest},
		{"duplicate visit", DuplicateVisit("V001"), CodeDuplicateVisit, http.StatusConflict},
		{"invalid station", InvalidStation("s1"), CodeInvalidStation, http.StatusUnprocessableEntity},
		{"forbidden", Forbidden(""), CodeForbidden, http.StatusForbidden},
		{"internal", Internal(errors.New("boom")), CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
		})
	}
}

func TestIs_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("complete step: %w", NotFound("journey step", "1"))
	assert.True(t, Is(err, CodeNotFound))
	assert.False(t, Is(err, CodeInvalidInput))
	assert.False(t, Is(errors.New("plain"), CodeNotFound))
}

func TestFrom_PlainErrorBecomesInternal(t *testing.T) {
	cause := errors.New("connection reset")
	appErr := From(cause)
	require.NotNil(t, appErr)
	assert.Equal(t, CodeInternal, appErr.Code)
	assert.ErrorIs(t, appErr, cause)
	assert.Nil(t, From(nil))
}

func TestHTTPErrorHandler_AppError(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	HTTPErrorHandler(DuplicateVisit("V001"), c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeDuplicateVisit, body["code"])
	assert.Equal(t, "V001", body["details"].(map[string]interface{})["vn"])
}

func TestHTTPErrorHandler_EchoError(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	HTTPErrorHandler(echo.NewHTTPError(http.StatusForbidden, "required role: admin"), c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), CodeForbidden)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusConflict, StatusOf(DuplicateVisit("VN1")))
	assert.Equal(t, http.StatusTooManyRequests, StatusOf(echo.NewHTTPError(http.StatusTooManyRequests)))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
}

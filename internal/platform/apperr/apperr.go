// Package apperr defines the error taxonomy shared by the journey service and
// its HTTP transport.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error codes surfaced to callers.
const (
	CodeNotFound       = "NOT_FOUND"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeDuplicateVisit = "DUPLICATE_VISIT"
	CodeInvalidStation = "INVALID_STATION"
	CodeForbidden      = "FORBIDDEN"
	CodeInternal       = "INTERNAL_ERROR"
)

// AppError is an error carrying a stable code and the HTTP status it maps to.
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Wrap attaches the underlying cause.
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

func newAppError(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// NotFound reports a missing visit, journey step or station.
func NotFound(resource, id string) *AppError {
	e := newAppError(CodeNotFound, resource+" not found", http.StatusNotFound)
	if id != "" {
		e.WithDetail("id", id)
	}
	return e
}

// InvalidInput reports a malformed id, a bad enum or a disallowed transition.
func InvalidInput(format string, args ...interface{}) *AppError {
	return newAppError(CodeInvalidInput, fmt.Sprintf(format, args...), http.StatusBadRequest)
}

// DuplicateVisit reports a visit number collision.
func DuplicateVisit(vn string) *AppError {
	return newAppError(CodeDuplicateVisit, "visit number already exists", http.StatusConflict).WithDetail("vn", vn)
}

// InvalidStation reports an unknown or inactive station used as a target.
func InvalidStation(id string) *AppError {
	return newAppError(CodeInvalidStation, "station is unknown or inactive", http.StatusUnprocessableEntity).WithDetail("station_id", id)
}

// Forbidden reports an actor acting outside its role or department.
func Forbidden(message string) *AppError {
	if message == "" {
		message = "access denied"
	}
	return newAppError(CodeForbidden, message, http.StatusForbidden)
}

// Internal wraps a persistence or infrastructure failure.
func Internal(err error) *AppError {
	return newAppError(CodeInternal, "an internal error occurred", http.StatusInternalServerError).Wrap(err)
}

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// From converts any error to an AppError. Errors that are not already typed
// become InternalError.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return appErr
	}
	return Internal(err)
}

// StatusOf returns the HTTP status err will be rendered with.
func StatusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return From(err).HTTPStatus
}

// HTTPErrorHandler renders AppErrors and echo.HTTPErrors as a JSON body of the
// form {"code","message","details"}.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := fmt.Sprintf("%v", he.Message)
		code := CodeInvalidInput
		switch he.Code {
		case http.StatusNotFound:
			code = CodeNotFound
		case http.StatusForbidden, http.StatusUnauthorized:
			code = CodeForbidden
		case http.StatusInternalServerError, http.StatusServiceUnavailable:
			code = CodeInternal
		}
		_ = c.JSON(he.Code, &AppError{Code: code, Message: msg})
		return
	}

	appErr := From(err)
	_ = c.JSON(appErr.HTTPStatus, appErr)
}

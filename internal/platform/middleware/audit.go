package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/journey/internal/platform/apperr"
	"github.com/ehr/journey/internal/platform/auth"
)

// AuditEntry records one state-changing request against the journey API.
type AuditEntry struct {
	UserID       string
	Role         string
	Department   string
	ResourceType string
	ResourceID   string
	Action       string
	IPAddress    string
	Path         string
	Method       string
	Timestamp    time.Time
	RequestID    string
	TenantID     string
	StatusCode   int
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every mutating request under /api/v1/ with the acting user and
// the visit, step or station it touched. Reads are not audited.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !isAuditable(req.Method, path) {
				return next(c)
			}

			err := next(c)

			actor := auth.ActorFromContext(req.Context())
			entry := AuditEntry{
				UserID:     actor.UserID,
				Role:       actor.Role,
				Department: actor.Department,
				Action:     auditAction(req.Method, path),
				IPAddress:  c.RealIP(),
				Path:       path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				StatusCode: c.Response().Status,
			}
			if err != nil {
				entry.StatusCode = apperr.StatusOf(err)
			}
			entry.RequestID, _ = c.Get("request_id").(string)
			entry.TenantID, _ = c.Get("tenant_id").(string)
			entry.ResourceType, entry.ResourceID = auditResource(path)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "journey_audit").
				Str("request_id", entry.RequestID).
				Str("tenant_id", entry.TenantID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("department", entry.Department).
				Str("resource_type", entry.ResourceType).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("journey_mutation")

			return err
		}
	}
}

func isAuditable(method, path string) bool {
	if !strings.HasPrefix(path, "/api/v1/") {
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// auditAction names the operation. Action sub-paths such as
// /journey-steps/:id/start win over the HTTP verb.
func auditAction(method, path string) string {
	segments := pathSegments(path)
	if len(segments) >= 3 {
		if _, err := uuid.Parse(segments[1]); err == nil {
			return segments[2]
		}
	}
	if len(segments) == 2 && segments[1] == "reorder" {
		return "reorder"
	}
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodDelete:
		return "delete"
	default:
		return "update"
	}
}

// auditResource extracts the collection and id from /api/v1/<collection>/<id>/...
func auditResource(path string) (string, string) {
	segments := pathSegments(path)
	if len(segments) == 0 || segments[0] == "" {
		return "unknown", ""
	}
	if len(segments) > 1 {
		if _, err := uuid.Parse(segments[1]); err == nil {
			return segments[0], segments[1]
		}
	}
	return segments[0], ""
}

func pathSegments(path string) []string {
	return strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
}

package journey

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/journey/internal/domain/station"
	"github.com/ehr/journey/internal/platform/apperr"
	"github.com/ehr/journey/internal/platform/auth"
)

// NextStationSuggester resolves auto_advance on complete.
type NextStationSuggester interface {
	SuggestNextStation(ctx context.Context, id uuid.UUID) (*station.Station, error)
}

type Handler struct {
	svc     *Service
	suggest NextStationSuggester
}

func NewHandler(svc *Service, suggest NextStationSuggester) *Handler {
	return &Handler{svc: svc, suggest: suggest}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Patients read their own visit; staff and admins read any.
	readGroup := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleStaff, auth.RoleAdmin))
	readGroup.GET("/visits/:id/status", h.GetVisitStatus)

	// Station staff progress patients through their own department.
	staffGroup := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleAdmin))
	staffGroup.GET("/departments/:department/queue", h.GetDepartmentQueue)
	staffGroup.POST("/journey-steps/:id/start", h.StartStep)
	staffGroup.POST("/journey-steps/:id/revert", h.RevertStep)
	staffGroup.POST("/visits/:id/complete", h.CompleteStep)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.POST("/visits/:id/journey-steps", h.CreateStep)
	adminGroup.PATCH("/journey-steps/:id", h.EditStep)
	adminGroup.DELETE("/journey-steps/:id", h.DeleteStep)
	adminGroup.POST("/journey-steps/reorder", h.ReorderSteps)
	adminGroup.POST("/journey-steps/:id/move", h.MoveStep)
}

func actorOf(c echo.Context) auth.Actor {
	return auth.ActorFromContext(c.Request().Context())
}

func (h *Handler) GetVisitStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	st, err := h.svc.GetVisitStatus(c.Request().Context(), actorOf(c), id, c.QueryParam("department"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) GetDepartmentQueue(c echo.Context) error {
	includeCompleted := false
	if v := c.QueryParam("include_completed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return apperr.InvalidInput("include_completed must be a boolean")
		}
		includeCompleted = b
	}
	q, err := h.svc.GetDepartmentQueue(c.Request().Context(), actorOf(c), c.Param("department"), includeCompleted)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) StartStep(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	st, err := h.svc.StartStep(c.Request().Context(), actorOf(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) CompleteStep(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in CompleteInput
	if err := c.Bind(&in); err != nil {
		return apperr.InvalidInput("malformed request body")
	}
	ctx := c.Request().Context()

	if in.AutoAdvance && in.NextStationID == nil && h.suggest != nil {
		cur, err := h.svc.InProgressStation(ctx, id)
		if err != nil {
			return err
		}
		if cur != nil {
			next, err := h.suggest.SuggestNextStation(ctx, *cur)
			if err != nil {
				return err
			}
			if next != nil {
				in.NextStationID = &next.ID
			}
		}
	}

	res, err := h.svc.CompleteStep(ctx, actorOf(c), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) RevertStep(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in RevertInput
	if err := c.Bind(&in); err != nil {
		return apperr.InvalidInput("malformed request body")
	}
	st, err := h.svc.RevertStep(c.Request().Context(), actorOf(c), id, in.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) EditStep(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p StepPatch
	if err := c.Bind(&p); err != nil {
		return apperr.InvalidInput("malformed request body")
	}
	st, err := h.svc.EditStep(c.Request().Context(), actorOf(c), id, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) CreateStep(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in CreateStepInput
	if err := c.Bind(&in); err != nil {
		return apperr.InvalidInput("malformed request body")
	}
	st, err := h.svc.CreateStep(c.Request().Context(), actorOf(c), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, st)
}

func (h *Handler) DeleteStep(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteStep(c.Request().Context(), actorOf(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ReorderSteps(c echo.Context) error {
	var in ReorderInput
	if err := c.Bind(&in); err != nil {
		return apperr.InvalidInput("malformed request body")
	}
	if err := h.svc.ReorderSteps(c.Request().Context(), actorOf(c), in); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) MoveStep(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in MoveInput
	if err := c.Bind(&in); err != nil {
		return apperr.InvalidInput("malformed request body")
	}
	if err := h.svc.MoveStep(c.Request().Context(), actorOf(c), id, in.Direction); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.InvalidInput("invalid id")
	}
	return id, nil
}

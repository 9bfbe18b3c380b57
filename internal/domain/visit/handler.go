package visit

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/journey/internal/platform/apperr"
	"github.com/ehr/journey/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the staff endpoints on api and the patient lookup on
// public, which carries no bearer authentication.
func (h *Handler) RegisterRoutes(api *echo.Group, public *echo.Group) {
	staff := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleAdmin))
	staff.POST("/visits", h.CreateVisit)
	staff.GET("/visits/:id", h.GetVisit)

	device := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleStaff, auth.RoleAdmin))
	device.PUT("/visits/:id/push-token", h.RegisterPushToken)

	public.POST("/lookup", h.Lookup)
}

func (h *Handler) CreateVisit(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return apperr.InvalidInput("malformed request body")
	}
	v, err := h.svc.CreateVisit(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetVisit(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.GetVisit(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) RegisterPushToken(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in PushTokenInput
	if err := c.Bind(&in); err != nil {
		return apperr.InvalidInput("malformed request body")
	}
	if err := h.svc.RegisterPushToken(c.Request().Context(), id, in.Token); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Lookup(c echo.Context) error {
	var in LookupInput
	if err := c.Bind(&in); err != nil {
		return apperr.InvalidInput("malformed request body")
	}
	if err := h.svc.validate.Struct(in); err != nil {
		return validationError(err)
	}
	v, err := h.svc.VerifyCredential(c.Request().Context(), in.VN, in.HNSecret)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.InvalidInput("invalid id")
	}
	return id, nil
}

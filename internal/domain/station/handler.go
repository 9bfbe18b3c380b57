package station

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/journey/internal/platform/apperr"
	"github.com/ehr/journey/internal/platform/auth"
	"github.com/ehr/journey/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleAdmin))
	read.GET("/stations", h.ListStations)
	read.GET("/stations/:id", h.GetStation)
	read.GET("/stations/:id/next", h.SuggestNextStation)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin))
	write.POST("/stations", h.CreateStation)
	write.PUT("/stations/:id", h.UpdateStation)
	write.DELETE("/stations/:id", h.DeactivateStation)
}

func (h *Handler) CreateStation(c echo.Context) error {
	var in Input
	if err := c.Bind(&in); err != nil {
		return apperr.InvalidInput("malformed request body")
	}
	st, err := h.svc.CreateStation(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, st)
}

func (h *Handler) GetStation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	st, err := h.svc.GetStation(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

// ListStations returns active stations unless ?active_only=false.
func (h *Handler) ListStations(c echo.Context) error {
	activeOnly := true
	if v := c.QueryParam("active_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return apperr.InvalidInput("active_only must be a boolean")
		}
		activeOnly = b
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListStations(c.Request().Context(), activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Station{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdateStation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Patch
	if err := c.Bind(&p); err != nil {
		return apperr.InvalidInput("malformed request body")
	}
	st, err := h.svc.UpdateStation(c.Request().Context(), id, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) DeactivateStation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeactivateStation(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SuggestNextStation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	next, err := h.svc.SuggestNextStation(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if next == nil {
		return apperr.NotFound("next station", id.String())
	}
	return c.JSON(http.StatusOK, next)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.InvalidInput("invalid id")
	}
	return id, nil
}

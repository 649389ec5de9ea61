package reconcile

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medintake/registry/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin"))
	g.GET("/reconcile/candidates", h.ListCandidates)
	g.POST("/reconcile/tickets/:id/apply", h.ApplyTicket)
}

// ListCandidates runs the duplicate sweep and returns the pending tickets.
func (h *Handler) ListCandidates(c echo.Context) error {
	tickets, err := h.svc.FindDuplicateCandidates(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if tickets == nil {
		tickets = []*MergeTicket{}
	}
	return c.JSON(http.StatusOK, tickets)
}

func (h *Handler) ApplyTicket(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	res, err := h.svc.Apply(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "ticket not found")
		}
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

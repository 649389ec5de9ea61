package linking

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medintake/registry/internal/domain/identifier"
	"github.com/medintake/registry/internal/platform/auth"
	"github.com/medintake/registry/pkg/pagination"
)

// defaultSearchWindow bounds how far from the event time an identity's
// activity may lie and still be considered.
const defaultSearchWindow = 365 * 24 * time.Hour

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "front_desk"))
	readGroup.GET("/identities/:id/links", h.ListLinks)

	writeGroup := api.Group("", auth.RequireRole("admin", "front_desk", "integration"))
	writeGroup.POST("/links", h.Link)
	writeGroup.POST("/links/manual", h.ManualLink)
}

type linkRequest struct {
	Event
	WindowDays int `json:"window_days,omitempty"`
}

func (h *Handler) Link(c echo.Context) error {
	var req linkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.EventID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "event_id is required")
	}
	window := defaultSearchWindow
	if req.WindowDays > 0 {
		window = time.Duration(req.WindowDays) * 24 * time.Hour
	}

	rec, err := h.svc.Link(c.Request().Context(), req.Event, window)
	if err != nil {
		var verr *identifier.ValidationError
		switch {
		case errors.As(err, &verr):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, verr.Error())
		case errors.Is(err, ErrNoMatch):
			return echo.NewHTTPError(http.StatusNotFound, "no matching identity in window")
		case errors.Is(err, ErrAmbiguousMatch):
			return echo.NewHTTPError(http.StatusConflict, "multiple candidates need manual review")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, rec)
}

type manualLinkRequest struct {
	Event
	IdentityID uuid.UUID `json:"identity_id"`
}

func (h *Handler) ManualLink(c echo.Context) error {
	var req manualLinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.EventID == "" || req.IdentityID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "event_id and identity_id are required")
	}
	rec, err := h.svc.ManualLink(c.Request().Context(), req.Event, req.IdentityID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ListLinks(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	links, err := h.svc.ListLinks(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	p := pagination.FromContext(c)
	total := len(links)
	page := []*LinkRecord{}
	if p.Offset < total {
		end := p.Offset + p.Limit
		if end > total {
			end = total
		}
		page = links[p.Offset:end]
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(page, total, p.Limit, p.Offset))
}

package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medintake/registry/internal/domain/identifier"
	"github.com/medintake/registry/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "front_desk"))
	readGroup.GET("/identities/:id", h.GetIdentity)

	writeGroup := api.Group("", auth.RequireRole("admin", "physician", "front_desk", "integration"))
	writeGroup.POST("/resolve", h.Resolve)
}

func (h *Handler) Resolve(c echo.Context) error {
	var in Intake
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Resolve(c.Request().Context(), in)
	if err != nil {
		var verr *identifier.ValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, verr.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, res)
}

func (h *Handler) GetIdentity(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "identity not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

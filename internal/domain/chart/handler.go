package chart

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medintake/registry/internal/platform/auth"
	"github.com/medintake/registry/internal/platform/extraction"
)

type Handler struct {
	svc       *Service
	extractor *extraction.Client
}

func NewHandler(svc *Service, extractor *extraction.Client) *Handler {
	return &Handler{svc: svc, extractor: extractor}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	readGroup.GET("/identities/:id/chart", h.GetChart)

	writeGroup := api.Group("", auth.RequireRole("admin", "physician", "integration"))
	writeGroup.POST("/identities/:id/chart/merge", h.MergeChart)
	writeGroup.POST("/identities/:id/chart/extract", h.ExtractAndMerge)
}

// chartView is the read shape: full history plus convenience latest views.
type chartView struct {
	*Chart
	LatestVitals map[string]VitalEntry `json:"latest_vitals"`
	LatestLabs   map[string]LabResult  `json:"latest_labs"`
}

func (h *Handler) GetChart(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ch, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, chartView{
		Chart:        ch,
		LatestVitals: ch.LatestVitals(),
		LatestLabs:   ch.LatestLabs(),
	})
}

func (h *Handler) MergeChart(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var b Bundle
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Merge(c.Request().Context(), id, b)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return echo.NewHTTPError(http.StatusConflict, "chart changed concurrently, retry")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

type extractRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// ExtractAndMerge calls the extraction service, then merges the returned
// bundle. The external call completes before the merge transaction starts.
func (h *Handler) ExtractAndMerge(c echo.Context) error {
	if h.extractor == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "extraction not configured")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req extractRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	ctx := c.Request().Context()
	var b Bundle
	if err := h.extractor.Extract(ctx, req.Text, &b); err != nil {
		if errors.Is(err, extraction.ErrExtractionFailed) {
			return echo.NewHTTPError(http.StatusBadGateway, "extraction service unavailable, source queued for reprocessing")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if b.Source == "" {
		b.Source = req.Source
	}

	res, err := h.svc.Merge(ctx, id, b)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

// Package v1 provides the external HTTP API of the orchestrator.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/runlab/orchestrator/internal/service"
)

// Handler handles external HTTP requests.
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Event ingestion
	e.POST("/v1/events", h.PostEvent)
	e.POST("/v1/events/batch", h.PostEventBatch)

	// Run admission and operator actions
	e.POST("/v1/hypotheses/:hypothesis_id/runs", h.PostRun)
	e.POST("/v1/runs/:run_id/cancel", h.CancelRun)
	e.POST("/v1/runs/:run_id/hide", h.HideRun)

	// Read API
	e.GET("/v1/runs", h.ListRuns)
	e.GET("/v1/runs/:run_id", h.GetRun)
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)
	e.GET("/v1/runs/:run_id/watch", h.WatchRun)
	e.GET("/v1/capacity", h.GetCapacity)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

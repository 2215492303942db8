// Package internalapi provides the worker-facing HTTP API. It is served on
// a separate port and never exposed publicly.
package internalapi

import (
	"github.com/labstack/echo/v4"
	"github.com/runlab/orchestrator/internal/service"
)

// Handler handles internal HTTP requests from workers.
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new internal API handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers internal routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Dispatch queue
	e.POST("/internal/jobs/claim", h.ClaimJob)
	e.POST("/internal/jobs/:job_id/ack", h.AckJob)
	e.POST("/internal/jobs/:job_id/nack", h.NackJob)

	// Slot leases
	e.POST("/internal/slots/acquire", h.AcquireSlot)
	e.POST("/internal/slots/:lease_id/release", h.ReleaseSlot)
}

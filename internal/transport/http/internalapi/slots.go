package internalapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/runlab/orchestrator/internal/limiter"
)

// AcquireSlot grants a worker one compute slot, blocking up to the
// configured acquisition timeout. Returns 503 when no slot frees in time.
func (h *Handler) AcquireSlot(c echo.Context) error {
	var req struct {
		RunID string `json:"run_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.RunID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "run_id is required"})
	}

	lease, err := h.svc.AcquireSlot(c.Request().Context(), req.RunID)
	if err != nil {
		if errors.Is(err, limiter.ErrAcquireTimeout) {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "no slot available"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to acquire slot"})
	}
	return c.JSON(http.StatusOK, lease)
}

// ReleaseSlot returns a leased slot to the pool. The worker echoes back the
// slot number it was granted so the release targets the right key.
func (h *Handler) ReleaseSlot(c echo.Context) error {
	var req struct {
		Slot int `json:"slot"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	lease := &limiter.Lease{LeaseID: c.Param("lease_id"), Slot: req.Slot}
	if err := h.svc.ReleaseSlot(c.Request().Context(), lease); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to release slot"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "released"})
}

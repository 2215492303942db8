package internalapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ClaimJob hands the next dispatch job to a worker. Returns 204 when the
// queue is empty.
func (h *Handler) ClaimJob(c echo.Context) error {
	var req struct {
		Consumer string `json:"consumer"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Consumer == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "consumer is required"})
	}

	job, err := h.svc.ClaimJob(c.Request().Context(), req.Consumer)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to claim job"})
	}
	if job == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, job)
}

// AckJob acknowledges a completed dispatch.
func (h *Handler) AckJob(c echo.Context) error {
	if err := h.svc.AckJob(c.Request().Context(), c.Param("job_id")); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to ack job"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "acked"})
}

// NackJob returns a job for retry, or dead-letters it once the attempt
// limit is reached.
func (h *Handler) NackJob(c echo.Context) error {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if err := h.svc.NackJob(c.Request().Context(), c.Param("job_id"), req.Reason); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to nack job"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "nacked"})
}

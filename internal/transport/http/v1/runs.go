package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/runlab/orchestrator/internal/domain"
)

// PostRun admits a new run for a hypothesis. The Idempotency-Key header is
// mandatory; retried requests with the same key replay the original run.
func (h *Handler) PostRun(c echo.Context) error {
	hypothesisID := c.Param("hypothesis_id")
	if hypothesisID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "hypothesis_id is required"})
	}

	idemKey := c.Request().Header.Get("Idempotency-Key")
	if idemKey == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Idempotency-Key header is required"})
	}

	result, _, err := h.svc.AdmitRun(c.Request().Context(), hypothesisID, idemKey)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to admit run"})
	}

	// Replays return the same status and body as the original admission.
	return c.JSONBlob(http.StatusCreated, result)
}

// CancelRun transitions a run to CANCELED.
func (h *Handler) CancelRun(c echo.Context) error {
	runID := c.Param("run_id")

	run, err := h.svc.CancelRun(c.Request().Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		if domain.IsIllegalTransition(err) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to cancel run"})
	}
	return c.JSON(http.StatusOK, run)
}

// HideRun marks a run hidden.
func (h *Handler) HideRun(c echo.Context) error {
	runID := c.Param("run_id")

	var req struct {
		Hidden *bool `json:"hidden"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil || req.Hidden == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "hidden must be a boolean"})
	}

	if err := h.svc.HideRun(c.Request().Context(), runID, *req.Hidden); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to hide run"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"run_id": runID, "hidden": *req.Hidden})
}

// GetRun returns a run with its stages, validations and artifacts.
func (h *Handler) GetRun(c echo.Context) error {
	detail, err := h.svc.GetRunDetail(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get run"})
	}
	return c.JSON(http.StatusOK, detail)
}

// ListRuns returns recent runs, optionally filtered by hypothesis_id.
func (h *Handler) ListRuns(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		}
		limit = n
	}

	runs, err := h.svc.ListRuns(c.Request().Context(), c.QueryParam("hypothesis_id"), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetRunEvents returns the event log for a run.
func (h *Handler) GetRunEvents(c echo.Context) error {
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		}
		limit = n
	}

	events, err := h.svc.GetRunEvents(c.Request().Context(), c.Param("run_id"), limit)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get events"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"events": events})
}

// GetCapacity reports slot occupancy and dispatch queue depth.
func (h *Handler) GetCapacity(c echo.Context) error {
	capacity, err := h.svc.GetCapacity(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get capacity"})
	}
	return c.JSON(http.StatusOK, capacity)
}

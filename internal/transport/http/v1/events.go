package v1

import (
	"bufio"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/runlab/orchestrator/internal/domain"
	"github.com/runlab/orchestrator/internal/event"
	"github.com/runlab/orchestrator/internal/service"
)

// eventResponse is the per-event ingestion outcome returned to producers.
type eventResponse struct {
	EventID  string `json:"event_id,omitempty"`
	Status   string `json:"status"`
	Field    string `json:"field,omitempty"`
	Expected string `json:"expected,omitempty"`
	Error    string `json:"error,omitempty"`
}

func ingestOutcome(res *service.IngestResult, err error) (int, eventResponse) {
	if err != nil {
		var verr *event.ValidationError
		switch {
		case errors.As(err, &verr):
			return http.StatusUnprocessableEntity, eventResponse{
				Status:   "invalid",
				Field:    verr.Field,
				Expected: verr.Expected,
			}
		case errors.Is(err, service.ErrPolicyDenied):
			return http.StatusForbidden, eventResponse{Status: "denied", Error: err.Error()}
		case errors.Is(err, domain.ErrNotFound):
			return http.StatusNotFound, eventResponse{Status: "unknown_run", Error: err.Error()}
		default:
			return http.StatusInternalServerError, eventResponse{Status: "error", Error: "failed to ingest event"}
		}
	}
	switch {
	case res.Duplicate:
		return http.StatusCreated, eventResponse{EventID: res.EventID, Status: "duplicate"}
	case res.Skipped != "":
		return http.StatusCreated, eventResponse{EventID: res.EventID, Status: res.Skipped}
	default:
		return http.StatusCreated, eventResponse{EventID: res.EventID, Status: "applied"}
	}
}

// PostEvent ingests a single event envelope.
func (h *Handler) PostEvent(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
	}

	res, err := h.svc.IngestEvent(c.Request().Context(), body)
	code, resp := ingestOutcome(res, err)
	return c.JSON(code, resp)
}

// PostEventBatch ingests a newline-delimited batch of event envelopes. Each
// line is processed independently: 202 when every line is accepted, 207
// when outcomes are mixed.
func (h *Handler) PostEventBatch(c echo.Context) error {
	ctx := c.Request().Context()

	results := []eventResponse{}
	anyFailed := false

	scanner := bufio.NewScanner(c.Request().Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		res, err := h.svc.IngestEvent(ctx, line)
		code, resp := ingestOutcome(res, err)
		if code >= http.StatusBadRequest {
			anyFailed = true
		}
		results = append(results, resp)
	}
	if err := scanner.Err(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
	}

	code := http.StatusAccepted
	if anyFailed {
		code = http.StatusMultiStatus
	}
	return c.JSON(code, map[string]interface{}{"results": results})
}

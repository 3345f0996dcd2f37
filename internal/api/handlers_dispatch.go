package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/strivehq/hookgate/internal/dispatch"
	"github.com/strivehq/hookgate/internal/models"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, event *models.Event) (*dispatch.Summary, error)
}

type DispatchHandler struct {
	dispatcher Dispatcher
}

func NewDispatchHandler(dispatcher Dispatcher) *DispatchHandler {
	return &DispatchHandler{dispatcher: dispatcher}
}

type dispatchRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	UserID    string          `json:"user_id"`
	Source    string          `json:"source"`
}

const maxPayloadSize = 256 * 1024 // 256KB

// Dispatch triggers fan-out for one event. The response is always 200
// with a per-subscription summary once the request is well-formed, even
// when every delivery failed.
func (h *DispatchHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadSize)
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventType == "" {
		writeError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	if len(req.Payload) == 0 {
		writeError(w, http.StatusBadRequest, "payload is required")
		return
	}

	event := &models.Event{
		Type:    req.EventType,
		UserID:  req.UserID,
		Payload: req.Payload,
		Source:  req.Source,
	}

	summary, err := h.dispatcher.Dispatch(r.Context(), event)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to dispatch event")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cscx/pulse/internal/adapters/mq/queue"
	"github.com/cscx/pulse/internal/domain/model"
)

// eventRequest mirrors the wire schema for POST /events.
type eventRequest struct {
	EventID    string             `json:"event_id"`
	EntityID   string             `json:"entity_id"`
	EntityType string             `json:"entity_type"`
	EventType  string             `json:"event_type"`
	Payload    map[string]float64 `json:"payload"`
	Labels     map[string]string  `json:"labels"`
	OccurredAt string             `json:"occurred_at"`
}

func (e eventRequest) validate() error {
	switch {
	case strings.TrimSpace(e.EventID) == "":
		return errors.New("missing event_id")
	case strings.TrimSpace(e.EntityID) == "":
		return errors.New("missing entity_id")
	case !model.EntityType(e.EntityType).Valid():
		return errors.New("unknown entity_type")
	case strings.TrimSpace(e.EventType) == "":
		return errors.New("missing event_type")
	case strings.TrimSpace(e.OccurredAt) == "":
		return errors.New("missing occurred_at")
	}
	if _, err := time.Parse(time.RFC3339, e.OccurredAt); err != nil {
		return errors.New("invalid occurred_at; must be RFC3339")
	}
	return nil
}

func (e eventRequest) toModel() model.Event {
	ts, _ := time.Parse(time.RFC3339, e.OccurredAt)
	return model.Event{
		EventID:    e.EventID,
		EntityID:   e.EntityID,
		EntityType: model.EntityType(e.EntityType),
		EventType:  e.EventType,
		Payload:    e.Payload,
		Labels:     e.Labels,
		OccurredAt: ts,
	}
}

// EventsHandler handles inbound signal events.
type EventsHandler struct {
	deps Dependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps Dependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvent handles POST /events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	duplicate, err := h.deps.IngestEvent(r.Context(), req.toModel())
	if err != nil {
		if errors.Is(err, queue.ErrFull) {
			writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Duplicate: false})
}

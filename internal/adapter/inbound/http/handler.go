package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tagmill/tagmill/internal/domain/build"
	"github.com/tagmill/tagmill/internal/domain/tagging"
	"github.com/tagmill/tagmill/internal/port/inbound"
)

// maxEventBodySize caps the event request body (1 MiB).
const maxEventBodySize = 1 << 20

// errorResponse is the JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

// EventsHandler serves POST /v1/events: one build event in, one tag
// resolution outcome out.
type EventsHandler struct {
	handler inbound.EventHandler
	metrics *Metrics
}

// NewEventsHandler creates the events endpoint handler.
func NewEventsHandler(handler inbound.EventHandler, metrics *Metrics) *EventsHandler {
	return &EventsHandler{handler: handler, metrics: metrics}
}

// ServeHTTP handles one build event request.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	logger := LoggerFromContext(r.Context())

	var ev build.Event
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid event body: " + err.Error()})
		return
	}
	if err := ev.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	start := time.Now()
	record, err := h.handler.HandleEvent(r.Context(), ev)
	h.observe(record, time.Since(start))

	if err != nil {
		logger.Error("event handling failed", "nsvc", ev.NSVC(), "outcome", record.Outcome, "error", err)
		writeJSON(w, statusForError(record), record)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *EventsHandler) observe(record tagging.Record, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}
	outcome := record.Outcome
	if outcome == "" {
		outcome = "invalid"
	}
	h.metrics.EventsTotal.WithLabelValues(outcome).Inc()
	h.metrics.EventDuration.Observe(elapsed.Seconds())
}

// statusForError maps handling failures to response codes: upstream
// fetch problems are 502, catalog authoring bugs and tag application
// failures are 500.
func statusForError(record tagging.Record) int {
	if record.Outcome == tagging.OutcomeFetchError {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

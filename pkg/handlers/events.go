package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/atelier-ai/atelier-engine/pkg/auth"
	"github.com/atelier-ai/atelier-engine/pkg/eventbus"
)

// keepAliveInterval is how often the stream emits a comment line so
// proxies don't drop idle connections.
const keepAliveInterval = 25 * time.Second

// EventsHandler bridges the in-process event bus to Server-Sent Events.
type EventsHandler struct {
	bus    *eventbus.Bus
	logger *zap.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(bus *eventbus.Bus, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		bus:    bus,
		logger: logger,
	}
}

// RegisterRoutes registers the events handler's routes on the given mux.
// The stream is long-lived, so it deliberately skips the tenant
// middleware: it never touches the database and must not pin a pooled
// connection for its lifetime.
func (h *EventsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/projects/{pid}/events",
		authMiddleware.RequireAuthWithPathValidation("pid")(h.Stream))
}

// Stream handles GET /api/projects/{pid}/events.
// Streams graph_changed and run_changed events for the project until the
// client disconnects. No replay: subscribers see only events published
// after they connect and re-fetch state to catch up.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("SSE not supported")
		if err := ErrorResponse(w, http.StatusInternalServerError, "sse_unsupported", "SSE not supported"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Events are refresh hints, not deltas. If the client cannot keep up
	// the overflow is dropped; the next delivered event triggers the same
	// re-fetch.
	events := make(chan eventbus.Event, 64)
	unsubscribe := h.bus.Subscribe(projectID, func(event eventbus.Event) {
		select {
		case events <- event:
		default:
		}
	})
	defer unsubscribe()

	h.logger.Debug("SSE stream opened",
		zap.String("project_id", projectID.String()))

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("SSE stream closed",
				zap.String("project_id", projectID.String()))
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event := <-events:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("Failed to marshal event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType(), data)
			flusher.Flush()
		}
	}
}

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/snarg/transcriptor/internal/events"
)

const sseKeepalive = 15 * time.Second

type EventsHandler struct {
	events EventSource
}

func NewEventsHandler(ev EventSource) *EventsHandler {
	return &EventsHandler{events: ev}
}

// StreamEvents opens an SSE connection and pushes filtered job events.
func (h *EventsHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		WriteError(w, http.StatusServiceUnavailable, "event streaming not available")
		return
	}

	rc := http.NewResponseController(w)
	filter := events.Filter{
		Types: QueryStringList(r, "types"),
		JobID: r.URL.Query().Get("jobId"),
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Long-lived stream; the server write timeout is for ordinary requests.
	_ = rc.SetWriteDeadline(time.Time{})

	// Subscribe first, then replay, so events published in between arrive
	// through the channel. Replayed ids are skipped when they come around again.
	ch, cancel := h.events.Subscribe(filter)
	defer cancel()

	replayed := make(map[string]bool)
	if lastEventID := r.Header.Get("Last-Event-ID"); lastEventID != "" {
		for _, e := range h.events.ReplaySince(lastEventID, filter) {
			writeSSE(w, e)
			replayed[e.ID] = true
		}
	}
	if err := rc.Flush(); err != nil {
		return
	}

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	log := hlog.FromRequest(r)
	log.Info().Msg("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			log.Info().Msg("SSE client disconnected")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if replayed[event.ID] {
				delete(replayed, event.ID)
				continue
			}
			writeSSE(w, event)
			rc.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			rc.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, e events.Event) {
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, e.Data)
}

// Routes registers event routes on the given router.
func (h *EventsHandler) Routes(r chi.Router) {
	r.Get("/events/stream", h.StreamEvents)
}

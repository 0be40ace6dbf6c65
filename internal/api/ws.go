package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/snarg/transcriptor/internal/events"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// wsMessage is the frame sent to websocket clients.
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// terminalEvent reports whether no further events will follow for the job.
func terminalEvent(t string) bool {
	switch t {
	case events.JobCompleted, events.JobFailed, events.JobCancelled, events.JobDeleted:
		return true
	}
	return false
}

// Stream upgrades to a websocket that carries one job's events: a snapshot
// of the job first, then every event until the job finishes.
func (h *JobsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.jobs.Get(id); err != nil {
		writeJobError(w, err)
		return
	}

	opts := &websocket.AcceptOptions{OriginPatterns: h.origins}
	if len(h.origins) == 0 {
		opts.InsecureSkipVerify = true
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		// Accept has already written the response.
		return
	}
	defer conn.CloseNow()

	log := hlog.FromRequest(r).With().Str("job_id", id).Logger()
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	// Subscribe before the snapshot so nothing published in between is lost.
	ch, cancel := h.events.Subscribe(events.Filter{JobID: id})
	defer cancel()

	// CloseRead discards client frames and cancels ctx when the client goes away.
	ctx := conn.CloseRead(r.Context())

	job, err := h.jobs.Get(id)
	if err != nil {
		conn.Close(websocket.StatusNormalClosure, "job deleted")
		return
	}
	if err := writeWS(ctx, conn, wsMessage{Type: "job_snapshot", Data: h.response(job)}); err != nil {
		return
	}
	if job.Status.Terminal() {
		conn.Close(websocket.StatusNormalClosure, "job finished")
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	log.Debug().Msg("websocket client connected")
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("websocket client disconnected")
			return
		case e, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := writeWS(ctx, conn, wsMessage{Type: e.Type, Data: e.Data}); err != nil {
				return
			}
			if terminalEvent(e.Type) {
				conn.Close(websocket.StatusNormalClosure, "job finished")
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func writeWS(ctx context.Context, conn *websocket.Conn, msg wsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

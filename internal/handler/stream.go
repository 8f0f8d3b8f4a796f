package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatcore/internal/middleware"
	"github.com/capitalize-ai/chatcore/internal/model"
	"github.com/capitalize-ai/chatcore/internal/session"
	"github.com/capitalize-ai/chatcore/pkg/logger"
	"github.com/capitalize-ai/chatcore/pkg/metrics"
)

// DefaultHeartbeat is the SSE keep-alive interval.
const DefaultHeartbeat = 30 * time.Second

// StreamHandler serves session updates as server-sent events.
type StreamHandler struct {
	session   Session
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(s Session, log *logger.Logger, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &StreamHandler{
		session:   s,
		logger:    log,
		heartbeat: heartbeat,
	}
}

// Stream handles GET /api/v1/stream
//
// The first event is a "snapshot" of the whole projection. Every session
// update follows as an event named after its kind, carrying the update and,
// for thread and message changes, the fresh snapshot.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	updates, cancel := h.session.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	log := middleware.RequestLogger(ctx, h.logger)
	log.Info("SSE client connected")

	if err := sendSSEEvent(w, flusher, "snapshot", h.session.Snapshot()); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("SSE client disconnected")
			return

		case u, ok := <-updates:
			if !ok {
				_ = sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
					Code:    "session_stopped",
					Message: session.ErrStopped.Error(),
				})
				return
			}
			if err := sendSSEEvent(w, flusher, string(u.Kind), h.event(u)); err != nil {
				log.Warn("SSE write failed", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			if err := sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			}); err != nil {
				return
			}
		}
	}
}

// UpdateEvent is the data of a non-snapshot SSE event.
type UpdateEvent struct {
	session.Update
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
}

func (h *StreamHandler) event(u session.Update) UpdateEvent {
	ev := UpdateEvent{Update: u}
	switch u.Kind {
	case session.UpdateThreads, session.UpdateSelection, session.UpdateMessages, session.UpdateStream:
		snap := h.session.Snapshot()
		ev.Snapshot = &snap
	}
	return ev
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}

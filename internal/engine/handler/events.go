package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"slotcore/internal/events"
	"slotcore/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

// EventStreamHandler exposes the broadcaster over Server-Sent Events so
// waiting-room pages and admin dashboards can watch slots change without
// polling. Each connection is one best-effort subscription; a consumer that
// falls behind loses oldest events, never the connection.
type EventStreamHandler struct {
	broadcaster *events.Broadcaster
	log         *logger.Logger
}

func NewEventStreamHandler(broadcaster *events.Broadcaster, log *logger.Logger) *EventStreamHandler {
	return &EventStreamHandler{
		broadcaster: broadcaster,
		log:         log,
	}
}

func (h *EventStreamHandler) Stream(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	scope := r.URL.Query().Get("scope")
	sub := h.broadcaster.Subscribe(scope)
	defer h.broadcaster.Unsubscribe(sub.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.log.Info("Event stream opened",
		"subscription_id", sub.ID,
		"scope", scope,
		"remote_addr", r.RemoteAddr,
	)

	for {
		select {
		case <-r.Context().Done():
			h.log.Info("Event stream closed",
				"subscription_id", sub.ID,
				"dropped", sub.Dropped(),
			)
			return
		case event, open := <-sub.Events():
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.log.Error("Event marshal failed", "event_id", event.ID, "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Kind, data)
			flusher.Flush()
		}
	}
}

func (h *EventStreamHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/events/stream", h.Stream)
}

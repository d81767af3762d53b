package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/errors"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/notify"
)

// Events streams job completion events over Server-Sent Events. The stream
// ends when the client disconnects. Requires a Redis-backed notifier.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	subscriber, ok := h.notifier.(notify.Subscriber)
	if !ok {
		writeError(w, errors.ConfigError("event streaming requires a Redis notifier"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.InternalError("response writer does not support streaming", nil))
		return
	}

	events, err := subscriber.SubscribeJobEvents(r.Context())
	if err != nil {
		writeError(w, errors.ConnectionError("failed to subscribe to job events", err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
		flusher.Flush()
	}
}

package bridge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/voidstore/storesync/logging"
)

// HandleSSE handles GET /api/events. The current tree is sent first, then
// every published tree and every change signal.
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	l := logging.Sub("bridge")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorMessage(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	trees := h.sync.Trees().Subscribe()
	defer trees.Cancel()
	status := h.sync.Status().Subscribe()
	defer status.Cancel()

	l.Info("SSE client connected", "remote", r.RemoteAddr)
	fmt.Fprintf(w, ": connected\n\n") //nolint:errcheck
	flusher.Flush()

	ticker := time.NewTicker(h.opts.Heartbeat)
	defer ticker.Stop()

	send := func(event string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			l.Warn("marshal event failed", "event", event, "err", err)
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data) //nolint:errcheck
		flusher.Flush()
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			l.Info("SSE client disconnected", "remote", r.RemoteAddr)
			return
		case root, ok := <-trees.C():
			if !ok {
				return
			}
			send("tree", root)
		case ev, ok := <-status.C():
			if !ok {
				return
			}
			send("status", ev)
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n") //nolint:errcheck
			flusher.Flush()
		}
	}
}

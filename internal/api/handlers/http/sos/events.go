package sos

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"trafficSOS/internal/fanout"
)

const heartbeatEvery = 15 * time.Second

type EventSource interface {
	Subscribe(prefix string, buffer int) *fanout.Subscription
}

// SOSEvents streams published case events as Server-Sent Events. The optional
// topic query narrows the stream to a topic prefix under "case/".
func (h *Handler) SOSEvents(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)

	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := h.Cases.AuthorizeRead(r.Context(), p); err != nil {
		h.handleError(w, r, err)
		return
	}
	if h.Events == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event stream unavailable"})
		return
	}

	prefix := r.URL.Query().Get("topic")
	if prefix == "" {
		prefix = "case/"
	}
	if !strings.HasPrefix(prefix, "case/") {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "topic must start with case/"})
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	sub := h.Events.Subscribe(prefix, 64)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		l.Warn("event stream not flushable", slog.String("error", err.Error()))
		return
	}

	l.Info("event stream opened", slog.String("topic", prefix))
	defer l.Info("event stream closed", slog.String("topic", prefix))

	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				l.Error("marshal event failed", slog.Any("error", err))
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.Envelope.Meta.RequestID, ev.Kind, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

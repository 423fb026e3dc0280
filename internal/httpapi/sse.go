package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"notigate/internal/notify"
	logx "notigate/pkg/logx"
)

const sseKeepalive = 25 * time.Second

// handleEvents streams manager lifecycle events as server-sent events.
// Slow consumers lose events rather than stalling the manager.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		fail(w, r, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot stream")
		return
	}

	ch, unsubscribe := s.mgr.Events().Subscribe(64)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-ch:
			if !open {
				return
			}
			name, payload, err := encodeEvent(ev)
			if err != nil {
				s.log.Warn("event encode failed", logx.Err(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func encodeEvent(ev notify.Event) (name string, payload []byte, err error) {
	switch e := ev.(type) {
	case notify.NotificationShown:
		name = "shown"
		payload, err = json.Marshal(e.Notification)
	case notify.QueueChanged:
		name = "queue_changed"
		q := e.Queue
		if q == nil {
			q = []notify.Entry{}
		}
		payload, err = json.Marshal(q)
	case notify.Acknowledged:
		name = "acknowledged"
		payload, err = json.Marshal(map[string]string{"id": e.ID})
	case notify.Dismissed:
		name = "dismissed"
		payload, err = json.Marshal(map[string]string{"id": e.ID})
	default:
		err = fmt.Errorf("unknown event %T", ev)
	}
	return name, payload, err
}

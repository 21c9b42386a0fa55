package webui

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var searchEventKinds = []string{
	EventTypeSearchStarted,
	EventTypeSearchCompleted,
	EventTypeSearchFailed,
	EventTypeSearchSuperseded,
}

// handleSearchEvents streams search run events. Query parameters:
// kinds (comma separated event types) and run (follow one token).
// A Last-Event-ID header replays retained events the client missed.
func (s *Server) handleSearchEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	opts := SubscribeOptions{
		Kinds: searchEventKinds,
		Token: strings.TrimSpace(r.URL.Query().Get("run")),
	}
	if raw := r.URL.Query().Get("kinds"); raw != "" {
		opts.Kinds = splitKinds(raw)
	}
	if last := r.Header.Get("Last-Event-ID"); last != "" {
		if id, err := strconv.ParseUint(last, 10, 64); err == nil {
			opts.LastEventID = id
		}
	}

	id := uuid.NewString()
	sub, err := s.events.Subscribe(id, opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.events.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	_, _ = fmt.Fprintf(w, "event: connected\ndata: {\"subscriber\":%q,\"status\":%q}\n\n", id, s.state.GetStatus())
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done:
			return
		case frame, ok := <-sub.Frames:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}

func splitKinds(raw string) []string {
	var kinds []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ManuGH/savesync/internal/log"
)

// handleEvents streams lifecycle and sync events as server-sent events until
// the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, r, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot flush")
		return
	}

	lc := s.lifecycle.Subscribe()
	defer func() { _ = lc.Close() }()
	sc := s.sync.Subscribe()
	defer func() { _ = sc.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Initial snapshot so clients need no extra round trip.
	if err := writeEvent(w, "session", s.session.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	logger := log.WithComponentFromContext(r.Context(), "api")
	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-lc.C():
			if !ok {
				return
			}
			err = writeEvent(w, "lifecycle", ev)
		case ev, ok := <-sc.C():
			if !ok {
				return
			}
			err = writeEvent(w, "sync", ev)
		case <-heartbeat.C:
			_, err = fmt.Fprint(w, ": keep-alive\n\n")
		}
		if err != nil {
			logger.Debug().Err(err).Str(log.FieldEvent, "api.sse_closed").Msg("event stream closed")
			return
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, b)
	return err
}

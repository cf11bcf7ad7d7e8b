// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/savesync/internal/domain/session/cloudsync"
)

type failureItem struct {
	ID       string           `json:"id"`
	Entity   string           `json:"entity"`
	Op       cloudsync.OpKind `json:"op"`
	Error    string           `json:"error"`
	At       time.Time        `json:"at"`
	Attempts int              `json:"attempts"`
}

func (s *Server) handleListFailures(w http.ResponseWriter, _ *http.Request) {
	fs := s.sync.Failures()
	items := make([]failureItem, 0, len(fs))
	for _, f := range fs {
		it := failureItem{ID: f.ID, Entity: f.Entity, Op: f.Op, At: f.At, Attempts: f.Attempts}
		if f.Err != nil {
			it.Error = f.Err.Error()
		}
		items = append(items, it)
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleRetryFailure(w http.ResponseWriter, r *http.Request) {
	if err := s.sync.Retry(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetryAll(w http.ResponseWriter, r *http.Request) {
	if err := s.sync.RetryAll(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDismissFailure(w http.ResponseWriter, r *http.Request) {
	if err := s.sync.Dismiss(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	queued, err := s.sync.Discover(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"queued": queued})
}

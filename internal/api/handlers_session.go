// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ManuGH/savesync/internal/domain/session/ports"
)

type startRequest struct {
	Entity string `json:"entity"`
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	if req.Entity == "" {
		writeBadRequest(w, r, "entity is required")
		return
	}
	s.respondStart(w, r, s.session.StartNewGame(r.Context(), req.Entity))
}

// handleContinue continues the named entity, or the most recent one when the
// body names none.
func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	var err error
	if req.Entity == "" {
		err = s.session.ContinueMostRecent(r.Context())
	} else {
		err = s.session.ContinueGame(r.Context(), req.Entity)
	}
	s.respondStart(w, r, err)
}

// respondStart answers 202 when the request was queued behind an exit.
func (s *Server) respondStart(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.session.Snapshot())
	case errors.Is(err, ports.ErrExitInProgress):
		writeJSON(w, http.StatusAccepted, s.session.Snapshot())
	default:
		writeError(w, r, err)
	}
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ExitToMenu(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Reset(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

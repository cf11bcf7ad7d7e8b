// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/savesync/internal/domain/session/cloudsync"
	"github.com/ManuGH/savesync/internal/domain/session/coordinator"
	"github.com/ManuGH/savesync/internal/domain/session/ports"
	"github.com/ManuGH/savesync/internal/log"
)

// Problem is an RFC 7807 style error body.
type Problem struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type errorClass struct {
	err    error
	status int
	kind   string
}

// errorClasses is ordered: the first match wins, so more specific errors
// precede the classes they wrap.
var errorClasses = []errorClass{
	{ports.ErrInvalidName, http.StatusBadRequest, "invalid_name"},
	{ports.ErrDownloadTimeout, http.StatusGatewayTimeout, "download_timeout"},
	{ports.ErrEntityNotFound, http.StatusNotFound, "entity_not_found"},
	{ports.ErrLocalNotFound, http.StatusNotFound, "local_not_found"},
	{ports.ErrNoSaves, http.StatusNotFound, "no_saves"},
	{cloudsync.ErrFailureNotFound, http.StatusNotFound, "failure_not_found"},
	{coordinator.ErrSuperseded, http.StatusConflict, "superseded"},
	{ports.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{ports.ErrNoActiveEntity, http.StatusConflict, "no_active_entity"},
	{ports.ErrUploadInProgress, http.StatusConflict, "upload_in_progress"},
	{ports.ErrConflictUnresolved, http.StatusConflict, "conflict_unresolved"},
	{ports.ErrNoIdentity, http.StatusServiceUnavailable, "no_identity"},
	{ports.ErrRemoteUnavailable, http.StatusServiceUnavailable, "remote_unavailable"},
	{ports.ErrEngineLoadFailure, http.StatusInternalServerError, "engine_load_failure"},
	{coordinator.ErrSaveFailed, http.StatusInternalServerError, "save_failed"},
	{ports.ErrRemoteUploadFailure, http.StatusBadGateway, "remote_upload_failure"},
	{ports.ErrRemoteDownloadFailure, http.StatusBadGateway, "remote_download_failure"},
	{ports.ErrRemoteDeleteFailure, http.StatusBadGateway, "remote_delete_failure"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
	{context.Canceled, http.StatusServiceUnavailable, "canceled"},
}

func classify(err error) (int, string) {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.status, c.kind
		}
	}
	return http.StatusInternalServerError, "internal"
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, kind, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:      kind,
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    detail,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

// writeError maps err onto a status code and problem body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).
			Str(log.FieldEvent, "api.error").
			Str("kind", kind).
			Int("status", status).
			Msg("request failed")
	}
	writeProblem(w, r, status, kind, err.Error())
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, http.StatusBadRequest, "bad_request", detail)
}

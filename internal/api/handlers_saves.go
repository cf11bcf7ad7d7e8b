// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/savesync/internal/domain/session/cloudsync"
	"github.com/ManuGH/savesync/internal/domain/session/model"
)

type saveItem struct {
	Name          string           `json:"name"`
	Status        model.SyncStatus `json:"status"`
	Local         bool             `json:"local"`
	RemoteState   string           `json:"remoteState,omitempty"`
	LastSavedAt   *time.Time       `json:"lastSavedAt,omitempty"`
	SyncedAt      *time.Time       `json:"syncedAt,omitempty"`
	DownloadedAt  *time.Time       `json:"downloadedAt,omitempty"`
	RemoteVersion string           `json:"remoteVersion,omitempty"`
	Uploading     bool             `json:"uploading"`
	Conflicts     int              `json:"conflicts"`
}

type saveList struct {
	RemoteAvailable bool       `json:"remoteAvailable"`
	Items           []saveItem `json:"items"`
}

func toSaveItem(st cloudsync.EntityStatus) saveItem {
	it := saveItem{
		Name:        st.Name,
		Status:      st.Status,
		Local:       st.Local,
		RemoteState: string(st.RemoteState),
		Uploading:   st.Uploading,
		Conflicts:   st.Conflicts,
	}
	if m := st.Metadata; m != nil {
		if !m.LastSavedAt.IsZero() {
			t := m.LastSavedAt
			it.LastSavedAt = &t
		}
		it.SyncedAt = m.SyncedAt
		it.DownloadedAt = m.DownloadedAt
		it.RemoteVersion = m.RemoteVersion
	}
	return it
}

// nameParam returns the decoded {name} path segment.
func nameParam(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

func (s *Server) handleListSaves(w http.ResponseWriter, r *http.Request) {
	rows, err := s.sync.Status(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := saveList{RemoteAvailable: s.sync.Available(), Items: make([]saveItem, 0, len(rows))}
	for _, row := range rows {
		out.Items = append(out.Items, toSaveItem(row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteSave(w http.ResponseWriter, r *http.Request) {
	scope, err := cloudsync.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	if err := s.sync.Delete(r.Context(), nameParam(r), scope); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	resolved, err := s.sync.Download(r.Context(), nameParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"entity": resolved})
}

type conflictItem struct {
	Entity       string     `json:"entity"`
	Version      string     `json:"version"`
	Device       string     `json:"device"`
	SavedAt      time.Time  `json:"savedAt"`
	PublishedAt  time.Time  `json:"publishedAt"`
	LocalSavedAt *time.Time `json:"localSavedAt,omitempty"`
	LocalVersion string     `json:"localVersion,omitempty"`
	KeepBothName string     `json:"keepBothName"`
}

func (s *Server) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	name := nameParam(r)
	recs, err := s.sync.DetectConflicts(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items := make([]conflictItem, 0, len(recs))
	for _, c := range recs {
		it := conflictItem{
			Entity:       c.Entity,
			Version:      c.Remote.ID,
			Device:       c.Remote.Manifest.Device,
			SavedAt:      c.Remote.Manifest.SavedAt,
			PublishedAt:  c.Remote.Manifest.PublishedAt,
			KeepBothName: cloudsync.KeepBothName(c.Entity, c.Remote.Manifest.PublishedAt),
		}
		if c.Local != nil {
			t := c.Local.LastSavedAt
			it.LocalSavedAt = &t
			it.LocalVersion = c.Local.RemoteVersion
		}
		items = append(items, it)
	}
	writeJSON(w, http.StatusOK, items)
}

type resolveRequest struct {
	Policy string `json:"policy"`
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	policy, err := cloudsync.ParsePolicy(req.Policy)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	created, err := s.sync.ResolveConflict(r.Context(), nameParam(r), policy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if created == nil {
		created = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"policy": policy, "created": created})
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cloudsync

import (
	"context"
	"sort"

	"github.com/ManuGH/savesync/internal/domain/session/model"
	"github.com/ManuGH/savesync/internal/domain/session/ports"
)

// EntityStatus is one row of the save list.
type EntityStatus struct {
	Name        string
	Status      model.SyncStatus
	Local       bool
	RemoteState ports.EntryState
	Metadata    *model.EntitySaveMetadata
	Uploading   bool
	Conflicts   int
}

// Status merges local bundles, metadata and the remote listing into a sorted
// save list. Remote columns stay empty while the remote is unavailable.
func (e *Engine) Status(ctx context.Context) ([]EntityStatus, error) {
	rows := make(map[string]*EntityStatus)
	row := func(name string) *EntityStatus {
		r, ok := rows[name]
		if !ok {
			r = &EntityStatus{Name: name}
			rows[name] = r
		}
		return r
	}

	localNames, err := e.local.List()
	if err != nil {
		return nil, err
	}
	for _, n := range localNames {
		row(n).Local = true
	}

	metas, err := e.meta.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range metas {
		m := metas[i]
		if _, ok := rows[m.Name]; !ok {
			continue
		}
		rows[m.Name].Metadata = &m
	}

	if e.Available() {
		entries, err := e.remote.List(ctx)
		if err != nil {
			e.logger.Warn().Err(err).Msg("remote listing failed, reporting local state only")
		}
		for _, en := range entries {
			if !e.pattern.MatchString(en.Name) {
				continue
			}
			row(en.Name).RemoteState = en.State
		}
	}

	out := make([]EntityStatus, 0, len(rows))
	for _, r := range rows {
		r.Status = model.DeriveSyncStatus(r.Metadata, r.Local, r.RemoteState != "")
		r.Uploading = e.gate.contains(r.Name)
		if r.RemoteState != "" {
			if versions, err := e.remote.ConflictVersions(ctx, r.Name); err == nil {
				r.Conflicts = len(versions)
			}
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Uploading returns the entities currently in the upload gate.
func (e *Engine) Uploading() []string {
	return e.gate.names()
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveSyncStatus(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before := t0.Add(-time.Minute)
	after := t0.Add(time.Minute)

	tests := []struct {
		name   string
		meta   *EntitySaveMetadata
		local  bool
		remote bool
		want   SyncStatus
	}{
		{name: "nowhere", local: false, remote: false, want: SyncUnknown},
		{name: "remote only", local: false, remote: true, want: SyncCloudOnly},
		{name: "local only", meta: &EntitySaveMetadata{LastSavedAt: t0}, local: true, remote: false, want: SyncLocalOnly},
		{name: "both without metadata", local: true, remote: true, want: SyncPendingUpload},
		{name: "never synced", meta: &EntitySaveMetadata{LastSavedAt: t0}, local: true, remote: true, want: SyncPendingUpload},
		{name: "saved after upload", meta: &EntitySaveMetadata{LastSavedAt: t0, SyncedAt: &before}, local: true, remote: true, want: SyncPendingUpload},
		{name: "uploaded after save", meta: &EntitySaveMetadata{LastSavedAt: t0, SyncedAt: &after}, local: true, remote: true, want: SyncSynced},
		{name: "downloaded after save", meta: &EntitySaveMetadata{LastSavedAt: t0, DownloadedAt: &after}, local: true, remote: true, want: SyncSynced},
		{name: "newest of both wins", meta: &EntitySaveMetadata{LastSavedAt: t0, SyncedAt: &before, DownloadedAt: &after}, local: true, remote: true, want: SyncSynced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveSyncStatus(tt.meta, tt.local, tt.remote))
		})
	}
}

func TestEntitySaveMetadata_CloneIsDeep(t *testing.T) {
	now := time.Now()
	orig := EntitySaveMetadata{Name: "Wizard", SyncedAt: &now}
	cp := orig.Clone()
	later := now.Add(time.Hour)
	*cp.SyncedAt = later

	assert.Equal(t, now, *orig.SyncedAt)
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "continue_game(Rogue)", ContinueGame("Rogue").String())
	assert.Equal(t, "load_failed(corrupt)", LoadFailed("corrupt").String())
	assert.Equal(t, "reset", Reset().String())
}

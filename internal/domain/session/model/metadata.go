// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// EntitySaveMetadata is the per-entity record kept next to the local bundle.
type EntitySaveMetadata struct {
	Name         string     `json:"name"`
	LastSavedAt  time.Time  `json:"lastSavedAt"`
	SyncedAt     *time.Time `json:"syncedAt,omitempty"`
	DownloadedAt *time.Time `json:"downloadedAt,omitempty"`
	// RemoteVersion is the remote version this device last uploaded or downloaded.
	RemoteVersion string `json:"remoteVersion,omitempty"`
}

// Clone returns a deep copy so callers can snapshot a record.
func (m EntitySaveMetadata) Clone() EntitySaveMetadata {
	out := m
	if m.SyncedAt != nil {
		t := *m.SyncedAt
		out.SyncedAt = &t
	}
	if m.DownloadedAt != nil {
		t := *m.DownloadedAt
		out.DownloadedAt = &t
	}
	return out
}

// SyncStatus is never stored. It is always derived from metadata timestamps
// and local/remote existence via DeriveSyncStatus.
type SyncStatus string

const (
	SyncUnknown       SyncStatus = "unknown"
	SyncLocalOnly     SyncStatus = "local_only"
	SyncCloudOnly     SyncStatus = "cloud_only"
	SyncPendingUpload SyncStatus = "pending_upload"
	SyncSynced        SyncStatus = "synced"
)

// DeriveSyncStatus computes the sync status of an entity.
// meta may be nil when no record exists yet.
func DeriveSyncStatus(meta *EntitySaveMetadata, localExists, remoteExists bool) SyncStatus {
	switch {
	case !localExists && remoteExists:
		return SyncCloudOnly
	case !localExists:
		return SyncUnknown
	case !remoteExists:
		return SyncLocalOnly
	}
	if meta == nil {
		return SyncPendingUpload
	}
	last := latest(meta.SyncedAt, meta.DownloadedAt)
	if last == nil || meta.LastSavedAt.After(*last) {
		return SyncPendingUpload
	}
	return SyncSynced
}

func latest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"context"
	"time"
)

// EntryState distinguishes materialized remote bundles from placeholders.
type EntryState string

const (
	EntryMaterialized EntryState = "materialized"
	EntryPlaceholder  EntryState = "placeholder"
)

// Manifest describes one published version of a remote bundle.
type Manifest struct {
	Version     string    `json:"version"`
	Device      string    `json:"device"`
	SavedAt     time.Time `json:"savedAt"`
	PublishedAt time.Time `json:"publishedAt"`
}

// RemoteEntry is a bundle (or placeholder) found in the remote tree.
// Manifest is only populated for materialized entries.
type RemoteEntry struct {
	Name     string
	State    EntryState
	Manifest *Manifest
}

// Version returns the manifest version or "" for placeholders.
func (e RemoteEntry) Version() string {
	if e.Manifest == nil {
		return ""
	}
	return e.Manifest.Version
}

// RemoteVersion is an unresolved conflict version kept beside the current bundle.
type RemoteVersion struct {
	ID       string
	Manifest Manifest
}

// PublishOptions says what Publish does with a bundle that is already current.
type PublishOptions struct {
	// ExpectVersion is the current version the publisher last synced, "" for
	// none. A current bundle or placeholder with any other version, or with
	// no readable version, is preserved as a conflict version.
	ExpectVersion string
	// Overwrite replaces the current bundle without preserving it.
	Overwrite bool
}

// PublishResult reports what happened to the previous current bundle.
type PublishResult struct {
	Replaced  string // version removed, "" if none
	Preserved string // conflict version ID kept, "" if none
}

// RemoteStore is a capability over the shared, multi-device remote tree.
// Lookups use exact names; missing entries return errors matching fs.ErrNotExist.
type RemoteStore interface {
	// Identity returns the signed-in account; ErrNoIdentity when absent.
	Identity(ctx context.Context) (string, error)
	List(ctx context.Context) ([]RemoteEntry, error)
	Stat(ctx context.Context, name string) (RemoteEntry, error)
	// Materialize asks the remote to pull a placeholder's content. It returns
	// immediately; callers poll Stat.
	Materialize(ctx context.Context, name string) error
	// ScratchDir returns a private directory from which Publish can move atomically.
	ScratchDir(ctx context.Context) (string, error)
	// Publish moves scratch into place and marks it shared. Checking the
	// current bundle against opts, preserving or removing it, and the move
	// happen atomically with respect to every other device.
	Publish(ctx context.Context, scratch, name string, m Manifest, opts PublishOptions) (PublishResult, error)
	Remove(ctx context.Context, name string) error
	// PreserveConflict moves the current bundle into the conflict versions.
	PreserveConflict(ctx context.Context, name string) error
	// CopyOut copies a consistent snapshot of the bundle into dst.
	CopyOut(ctx context.Context, name, dst string) (Manifest, error)
	ConflictVersions(ctx context.Context, name string) ([]RemoteVersion, error)
	CopyVersionOut(ctx context.Context, name, versionID, dst string) error
	DiscardConflicts(ctx context.Context, name string) error
	// Changes emits a signal whenever the remote tree changes.
	Changes(ctx context.Context) (<-chan struct{}, error)
}

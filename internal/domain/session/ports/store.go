// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"context"
	"time"

	"github.com/ManuGH/savesync/internal/domain/session/model"
)

// MetadataStore persists EntitySaveMetadata keyed by entity name.
// Load returns (nil, nil) when no record exists.
type MetadataStore interface {
	Load(ctx context.Context, entity string) (*model.EntitySaveMetadata, error)
	Save(ctx context.Context, meta model.EntitySaveMetadata) error
	// UpdateSyncedAt and UpdateDownloadedAt create the record when it is missing.
	UpdateSyncedAt(ctx context.Context, entity string, at time.Time, version string) error
	UpdateDownloadedAt(ctx context.Context, entity string, at time.Time, version string) error
	Delete(ctx context.Context, entity string) error
	List(ctx context.Context) ([]model.EntitySaveMetadata, error)
	Close() error
}

// LocalStore holds one bundle directory per entity.
type LocalStore interface {
	// Path is the bundle directory the engine reads and writes for entity.
	Path(entity string) string
	Exists(entity string) bool
	List() ([]string, error)
	// Snapshot copies the bundle into dst, which must not exist.
	Snapshot(entity, dst string) error
	// StagingDir returns a fresh directory on the store's filesystem.
	StagingDir() (string, error)
	// Replace atomically swaps the bundle for the fully written staged directory.
	Replace(entity, staged string) error
	Delete(entity string) error
	GlobalSlotExists() bool
}

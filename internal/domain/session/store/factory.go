// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store persists per-entity save metadata.
package store

import (
	"fmt"
	"path/filepath"

	"github.com/ManuGH/savesync/internal/domain/session/ports"
)

const (
	BackendFile   = "file"
	BackendSqlite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// OpenMetadataStore creates a MetadataStore for backend rooted at dir.
func OpenMetadataStore(backend, dir string) (ports.MetadataStore, error) {
	if backend == "" {
		backend = BackendFile
	}

	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(filepath.Join(dir, "metadata"))
	case BackendSqlite:
		return NewSqliteStore(filepath.Join(dir, "metadata.sqlite"))
	case BackendBadger:
		return OpenBadgerStore(filepath.Join(dir, "metadata.badger"))
	default:
		return nil, fmt.Errorf("unknown metadata store backend: %s (supported: file, sqlite, badger, memory)", backend)
	}
}

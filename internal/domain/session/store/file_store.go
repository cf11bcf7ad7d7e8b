// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/savesync/internal/domain/session/model"
)

const metaExt = ".json"

// FileStore keeps one JSON document per entity. Every write goes through
// renameio so a crash never leaves a torn record behind.
type FileStore struct {
	dir string
	mu  sync.Mutex // serializes read-modify-write updates
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create metadata dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(entity string) string {
	return filepath.Join(s.dir, entity+metaExt)
}

func (s *FileStore) Load(_ context.Context, entity string) (*model.EntitySaveMetadata, error) {
	return s.read(entity)
}

func (s *FileStore) read(entity string) (*model.EntitySaveMetadata, error) {
	// #nosec G304 -- entity names are validated before reaching the store
	data, err := os.ReadFile(s.path(entity))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata %q: %w", entity, err)
	}
	var m model.EntitySaveMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode metadata %q: %w", entity, err)
	}
	return &m, nil
}

func (s *FileStore) write(meta model.EntitySaveMetadata) error {
	buf, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(s.path(meta.Name), buf, 0o600); err != nil {
		return fmt.Errorf("write metadata %q: %w", meta.Name, err)
	}
	return nil
}

func (s *FileStore) Save(_ context.Context, meta model.EntitySaveMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(meta)
}

func (s *FileStore) update(entity string, fn func(*model.EntitySaveMetadata)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.read(entity)
	if err != nil {
		return err
	}
	if m == nil {
		m = &model.EntitySaveMetadata{Name: entity}
	}
	fn(m)
	return s.write(*m)
}

func (s *FileStore) UpdateSyncedAt(_ context.Context, entity string, at time.Time, version string) error {
	return s.update(entity, func(m *model.EntitySaveMetadata) {
		t := at
		m.SyncedAt = &t
		m.RemoteVersion = version
	})
}

func (s *FileStore) UpdateDownloadedAt(_ context.Context, entity string, at time.Time, version string) error {
	return s.update(entity, func(m *model.EntitySaveMetadata) {
		t := at
		m.DownloadedAt = &t
		m.RemoteVersion = version
	})
}

func (s *FileStore) Delete(_ context.Context, entity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(entity)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete metadata %q: %w", entity, err)
	}
	return nil
}

func (s *FileStore) List(_ context.Context) ([]model.EntitySaveMetadata, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	var out []model.EntitySaveMetadata
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, metaExt) || strings.HasPrefix(name, ".") {
			continue
		}
		m, err := s.read(strings.TrimSuffix(name, metaExt))
		if err != nil {
			return nil, err
		}
		if m != nil {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *FileStore) Close() error {
	return nil
}

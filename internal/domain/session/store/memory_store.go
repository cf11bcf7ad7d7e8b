// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/savesync/internal/domain/session/model"
)

// MemoryStore implements MetadataStore using a map (thread-safe).
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]model.EntitySaveMetadata
}

// NewMemoryStore creates an in-memory metadata store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]model.EntitySaveMetadata)}
}

func (s *MemoryStore) Load(_ context.Context, entity string) (*model.EntitySaveMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.data[entity]
	if !ok {
		return nil, nil
	}
	cp := m.Clone()
	return &cp, nil
}

func (s *MemoryStore) Save(_ context.Context, meta model.EntitySaveMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[meta.Name] = meta.Clone()
	return nil
}

func (s *MemoryStore) UpdateSyncedAt(_ context.Context, entity string, at time.Time, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.data[entity]
	m.Name = entity
	t := at
	m.SyncedAt = &t
	m.RemoteVersion = version
	s.data[entity] = m
	return nil
}

func (s *MemoryStore) UpdateDownloadedAt(_ context.Context, entity string, at time.Time, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.data[entity]
	m.Name = entity
	t := at
	m.DownloadedAt = &t
	m.RemoteVersion = version
	s.data[entity] = m
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, entity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, entity)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]model.EntitySaveMetadata, error) {
	s.mu.RLock()
	out := make([]model.EntitySaveMetadata, 0, len(s.data))
	for _, m := range s.data {
		out = append(out, m.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

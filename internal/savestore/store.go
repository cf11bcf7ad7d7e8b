// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package savestore keeps per-entity save bundles on the local disk.
//
// Layout under the root:
//
//	<Entity>/      one bundle directory per entity
//	.global        legacy most-recent slot written by older engines
//	.staging/      scratch space for downloads and swaps
//
// Dot-prefixed names never appear in List.
package savestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/savesync/internal/domain/session/ports"
	"github.com/ManuGH/savesync/internal/fsutil"
	xglog "github.com/ManuGH/savesync/internal/log"
)

const (
	GlobalSlotName = ".global"
	stagingDirName = ".staging"
)

// Store is a directory-backed ports.LocalStore.
type Store struct {
	root   string
	logger zerolog.Logger
	mu     sync.Mutex // serializes Replace and Delete
}

var _ ports.LocalStore = (*Store)(nil)

// Open prepares root and clears staging leftovers from a previous run.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, stagingDirName), 0o750); err != nil {
		return nil, fmt.Errorf("savestore: %w", err)
	}
	s := &Store{root: root, logger: xglog.WithComponent("savestore")}
	s.sweepStaging()
	return s, nil
}

// Root returns the directory holding all bundles.
func (s *Store) Root() string { return s.root }

func (s *Store) Path(entity string) string {
	return filepath.Join(s.root, entity)
}

func (s *Store) GlobalSlotPath() string {
	return filepath.Join(s.root, GlobalSlotName)
}

func (s *Store) confined(entity string) (string, error) {
	if err := fsutil.ValidateEntityName(entity); err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrInvalidName, err)
	}
	return fsutil.ConfineRelPath(s.root, entity)
}

func (s *Store) Exists(entity string) bool {
	p, err := s.confined(entity)
	if err != nil {
		return false
	}
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}

func (s *Store) GlobalSlotExists() bool {
	_, err := os.Stat(s.GlobalSlotPath())
	return err == nil
}

// List returns entity names sorted lexicographically.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("savestore: list: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Snapshot(entity, dst string) error {
	p, err := s.confined(entity)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ports.ErrLocalNotFound, entity)
	}
	return fsutil.CopyTree(context.Background(), p, dst)
}

func (s *Store) StagingDir() (string, error) {
	dir := filepath.Join(s.root, stagingDirName, uuid.NewString())
	if err := os.MkdirAll(filepath.Dir(dir), 0o750); err != nil {
		return "", err
	}
	return dir, nil
}

// Replace swaps the bundle for staged. The old bundle is moved aside first
// and only removed once the new one is in place, so readers see either the
// old or the new bundle, never a mix.
func (s *Store) Replace(entity, staged string) error {
	p, err := s.confined(entity)
	if err != nil {
		return err
	}
	if fi, err := os.Stat(staged); err != nil || !fi.IsDir() {
		return fmt.Errorf("savestore: staged bundle for %s missing", entity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	aside := ""
	if _, err := os.Stat(p); err == nil {
		aside = filepath.Join(s.root, stagingDirName, uuid.NewString()+".old")
		if err := os.Rename(p, aside); err != nil {
			return fmt.Errorf("savestore: move aside %s: %w", entity, err)
		}
	}
	if err := os.Rename(staged, p); err != nil {
		if aside != "" {
			if rerr := os.Rename(aside, p); rerr != nil {
				s.logger.Error().Err(rerr).
					Str(xglog.FieldEntity, entity).Msg("failed to restore bundle after swap error")
			}
		}
		return fmt.Errorf("savestore: swap %s: %w", entity, err)
	}
	_ = fsutil.SyncDir(s.root)
	if aside != "" {
		_ = os.RemoveAll(aside)
	}
	return nil
}

func (s *Store) Delete(entity string) error {
	p, err := s.confined(entity)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	// Rename first so a crash never leaves a half-deleted bundle visible.
	trash := filepath.Join(s.root, stagingDirName, uuid.NewString()+".del")
	if err := os.Rename(p, trash); err != nil {
		return fmt.Errorf("savestore: delete %s: %w", entity, err)
	}
	return os.RemoveAll(trash)
}

func (s *Store) sweepStaging() {
	dir := filepath.Join(s.root, stagingDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			s.logger.Warn().Err(err).Str(xglog.FieldPath, e.Name()).Msg("staging sweep failed")
		}
	}
}

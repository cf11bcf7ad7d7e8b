// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsremote implements ports.RemoteStore over a shared directory tree,
// such as a synced cloud-drive folder mounted on every device.
//
// Layout under the root:
//
//	account.json                    signed-in identity
//	Saves/<Entity>/                 published bundles (with manifest)
//	Saves/.<Entity>.placeholder     bundle known remotely, content not yet local
//	.cloud/<Entity>/                placeholder content awaiting materialization
//	.conflicts/<Entity>/<version>/  preserved conflict versions
//	.scratch/                       private upload staging
//	.locks/<Entity>.lock            advisory copy locks
package fsremote

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
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/savesync/internal/domain/session/ports"
	"github.com/ManuGH/savesync/internal/fsutil"
	xglog "github.com/ManuGH/savesync/internal/log"
)

const (
	ManifestFile      = ".savesync-manifest.json"
	IdentityFile      = "account.json"
	savesDir          = "Saves"
	cloudDir          = ".cloud"
	conflictsDir      = ".conflicts"
	scratchDir        = ".scratch"
	locksDir          = ".locks"
	placeholderSuffix = ".placeholder"
)

// ErrNotMaterialized is returned when content is requested for a placeholder.
var ErrNotMaterialized = errors.New("remote entry not materialized")

// Options configures a Store.
type Options struct {
	Root string
	// MaterializeDelay simulates the provider fetching placeholder content.
	MaterializeDelay time.Duration
}

// Store is a directory-backed remote store.
type Store struct {
	root             string
	materializeDelay time.Duration
	logger           zerolog.Logger

	mu            sync.Mutex
	materializing map[string]struct{}
	closed        bool
	wg            sync.WaitGroup
}

var _ ports.RemoteStore = (*Store)(nil)

type identityDoc struct {
	Account string `json:"account"`
}

// Open creates the directory skeleton under opts.Root. It does not create an
// identity; a tree without account.json reports ErrNoIdentity.
func Open(opts Options) (*Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("fsremote: root is required")
	}
	for _, d := range []string{savesDir, cloudDir, conflictsDir, scratchDir, locksDir} {
		if err := os.MkdirAll(filepath.Join(opts.Root, d), 0o750); err != nil {
			return nil, fmt.Errorf("fsremote: prepare %s: %w", d, err)
		}
	}
	return &Store{
		root:             opts.Root,
		materializeDelay: opts.MaterializeDelay,
		logger:           xglog.WithComponent("fsremote").With().Str(xglog.FieldRemoteRoot, opts.Root).Logger(),
		materializing:    make(map[string]struct{}),
	}, nil
}

// Close waits for in-flight materializations.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *Store) bundlePath(name string) string {
	return filepath.Join(s.root, savesDir, name)
}

func (s *Store) placeholderPath(name string) string {
	return filepath.Join(s.root, savesDir, "."+name+placeholderSuffix)
}

func (s *Store) cloudPath(name string) string {
	return filepath.Join(s.root, cloudDir, name)
}

func (s *Store) conflictRoot(name string) string {
	return filepath.Join(s.root, conflictsDir, name)
}

func (s *Store) lock(name string, exclusive bool) (func(), error) {
	return lockFile(filepath.Join(s.root, locksDir, name+".lock"), exclusive)
}

func checkName(name string) error {
	if err := fsutil.ValidateEntityName(name); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrInvalidName, err)
	}
	return nil
}

func notExist(name string) error {
	return fmt.Errorf("remote entry %q: %w", name, fs.ErrNotExist)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SetIdentity records the signed-in account.
func (s *Store) SetIdentity(account string) error {
	b, err := json.Marshal(identityDoc{Account: account})
	if err != nil {
		return err
	}
	return renameio.WriteFile(filepath.Join(s.root, IdentityFile), b, 0o640)
}

// ClearIdentity simulates a sign-out.
func (s *Store) ClearIdentity() error {
	err := os.Remove(filepath.Join(s.root, IdentityFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Store) Identity(_ context.Context) (string, error) {
	b, err := os.ReadFile(filepath.Join(s.root, IdentityFile)) // #nosec G304
	if errors.Is(err, fs.ErrNotExist) {
		return "", ports.ErrNoIdentity
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrRemoteUnavailable, err)
	}
	var doc identityDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return "", fmt.Errorf("%w: corrupt identity: %v", ports.ErrRemoteUnavailable, err)
	}
	if strings.TrimSpace(doc.Account) == "" {
		return "", ports.ErrNoIdentity
	}
	return doc.Account, nil
}

func readManifest(dir string) (*ports.Manifest, error) {
	b, err := os.ReadFile(filepath.Join(dir, ManifestFile)) // #nosec G304
	if err != nil {
		return nil, err
	}
	var m ports.Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("corrupt manifest: %w", err)
	}
	return &m, nil
}

func (s *Store) List(ctx context.Context) ([]ports.RemoteEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, savesDir))
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ports.ErrRemoteUnavailable, err)
	}

	byName := make(map[string]ports.RemoteEntry)
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir() && !strings.HasPrefix(name, "."):
			entry := ports.RemoteEntry{Name: name, State: ports.EntryMaterialized}
			if m, err := readManifest(s.bundlePath(name)); err == nil {
				entry.Manifest = m
			} else {
				s.logger.Debug().Err(err).Str(xglog.FieldRemoteName, name).Msg("bundle without readable manifest")
			}
			byName[name] = entry
		case !e.IsDir() && strings.HasPrefix(name, ".") && strings.HasSuffix(name, placeholderSuffix):
			n := strings.TrimSuffix(strings.TrimPrefix(name, "."), placeholderSuffix)
			if n == "" {
				continue
			}
			if _, ok := byName[n]; !ok {
				byName[n] = ports.RemoteEntry{Name: n, State: ports.EntryPlaceholder}
			}
		}
	}

	out := make([]ports.RemoteEntry, 0, len(byName))
	for _, e := range byName {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Stat(_ context.Context, name string) (ports.RemoteEntry, error) {
	if err := checkName(name); err != nil {
		return ports.RemoteEntry{}, err
	}
	if fi, err := os.Stat(s.bundlePath(name)); err == nil && fi.IsDir() {
		entry := ports.RemoteEntry{Name: name, State: ports.EntryMaterialized}
		if m, err := readManifest(s.bundlePath(name)); err == nil {
			entry.Manifest = m
		}
		return entry, nil
	}
	if exists(s.placeholderPath(name)) {
		return ports.RemoteEntry{Name: name, State: ports.EntryPlaceholder}, nil
	}
	return ports.RemoteEntry{}, notExist(name)
}

// Materialize schedules the placeholder's content to be moved into place
// after MaterializeDelay. Repeated calls while one is pending are no-ops.
func (s *Store) Materialize(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if exists(s.bundlePath(name)) {
		return nil
	}
	if !exists(s.placeholderPath(name)) {
		return notExist(name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store closed", ports.ErrRemoteUnavailable)
	}
	if _, busy := s.materializing[name]; busy {
		return nil
	}
	s.materializing[name] = struct{}{}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.materializeDelay > 0 {
			time.Sleep(s.materializeDelay)
		}
		if err := s.materializeNow(name); err != nil {
			s.logger.Error().Err(err).Str(xglog.FieldRemoteName, name).Msg("materialization failed")
		}
		s.mu.Lock()
		delete(s.materializing, name)
		s.mu.Unlock()
	}()
	return nil
}

func (s *Store) materializeNow(name string) error {
	unlock, err := s.lock(name, true)
	if err != nil {
		return err
	}
	defer unlock()

	if exists(s.bundlePath(name)) {
		return os.Remove(s.placeholderPath(name))
	}
	if err := os.Rename(s.cloudPath(name), s.bundlePath(name)); err != nil {
		return fmt.Errorf("move content: %w", err)
	}
	if err := os.Remove(s.placeholderPath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	s.logger.Debug().Str(xglog.FieldRemoteName, name).Msg("placeholder materialized")
	return nil
}

// Evict turns a materialized bundle back into a placeholder, the way a cloud
// drive frees local space.
func (s *Store) Evict(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	unlock, err := s.lock(name, true)
	if err != nil {
		return err
	}
	defer unlock()

	if !exists(s.bundlePath(name)) {
		return notExist(name)
	}
	_ = os.RemoveAll(s.cloudPath(name))
	if err := os.Rename(s.bundlePath(name), s.cloudPath(name)); err != nil {
		return err
	}
	return renameio.WriteFile(s.placeholderPath(name), []byte(name), 0o640)
}

func (s *Store) ScratchDir(_ context.Context) (string, error) {
	dir := filepath.Join(s.root, scratchDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("%w: scratch: %v", ports.ErrRemoteUnavailable, err)
	}
	return filepath.Join(dir, uuid.NewString()), nil
}

// Publish writes the manifest into scratch and renames it into place. Under
// the exclusive entity lock the current bundle (or placeholder) is checked
// against opts: the expected version is removed, anything else is preserved
// as a conflict version. If the final rename fails a removed bundle is put
// back.
func (s *Store) Publish(_ context.Context, scratch, name string, m ports.Manifest, opts ports.PublishOptions) (ports.PublishResult, error) {
	var res ports.PublishResult
	if err := checkName(name); err != nil {
		return res, err
	}
	if filepath.Dir(filepath.Clean(scratch)) != filepath.Join(s.root, scratchDir) {
		return res, fmt.Errorf("publish: %s is not a scratch dir of this store", scratch)
	}

	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return res, err
	}
	if err := renameio.WriteFile(filepath.Join(scratch, ManifestFile), b, 0o640); err != nil {
		return res, fmt.Errorf("publish: write manifest: %w", err)
	}

	unlock, err := s.lock(name, true)
	if err != nil {
		return res, err
	}
	defer unlock()

	var trash string
	if cur, ok := s.currentVersion(name); ok {
		if opts.Overwrite || (cur != "" && cur == opts.ExpectVersion) {
			if trash, err = s.detachLocked(name); err != nil {
				return res, fmt.Errorf("publish %q: replace: %w", name, err)
			}
			res.Replaced = cur
		} else {
			if res.Preserved, err = s.preserveLocked(name); err != nil {
				return res, err
			}
			s.logger.Info().
				Str(xglog.FieldRemoteName, name).
				Str(xglog.FieldVersion, res.Preserved).
				Str("expected", opts.ExpectVersion).
				Msg("current bundle kept as conflict version")
		}
	}

	dst := s.bundlePath(name)
	if err := os.Rename(scratch, dst); err != nil {
		if trash != "" {
			if rerr := os.Rename(trash, dst); rerr != nil {
				s.logger.Error().Err(rerr).Str(xglog.FieldRemoteName, name).Msg("restoring replaced bundle failed")
			}
		}
		return ports.PublishResult{}, fmt.Errorf("publish %q: %w", name, err)
	}
	if trash != "" {
		s.dropTrash(trash)
	}
	_ = os.Remove(s.placeholderPath(name))
	_ = os.RemoveAll(s.cloudPath(name))
	_ = fsutil.SyncDir(filepath.Join(s.root, savesDir))
	return res, nil
}

// currentVersion reports whether name has a current bundle or placeholder,
// and the bundle's manifest version. Placeholders and bundles without a
// readable manifest report "". Callers hold the entity lock.
func (s *Store) currentVersion(name string) (string, bool) {
	if exists(s.bundlePath(name)) {
		if m, err := readManifest(s.bundlePath(name)); err == nil {
			return m.Version, true
		}
		return "", true
	}
	return "", exists(s.placeholderPath(name))
}

// detachLocked moves the current bundle (or placeholder content) into the
// scratch area and returns its trash path, "" when only a marker existed.
func (s *Store) detachLocked(name string) (string, error) {
	trash := ""
	if exists(s.bundlePath(name)) {
		trash = filepath.Join(s.root, scratchDir, uuid.NewString()+".del")
		if err := os.Rename(s.bundlePath(name), trash); err != nil {
			return "", err
		}
	}
	if exists(s.placeholderPath(name)) {
		if err := os.Remove(s.placeholderPath(name)); err != nil {
			return trash, err
		}
		_ = os.RemoveAll(s.cloudPath(name))
	}
	return trash, nil
}

func (s *Store) dropTrash(trash string) {
	if err := os.RemoveAll(trash); err != nil {
		s.logger.Warn().Err(err).Str(xglog.FieldPath, trash).Msg("trash cleanup failed")
	}
}

// Remove deletes the current bundle or placeholder. Conflict versions stay.
func (s *Store) Remove(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	unlock, err := s.lock(name, true)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := s.currentVersion(name); !ok {
		return notExist(name)
	}
	trash, err := s.detachLocked(name)
	if trash != "" {
		s.dropTrash(trash)
	}
	return err
}

// PreserveConflict moves the current bundle (or placeholder content) into the
// conflict versions, keyed by its manifest version.
func (s *Store) PreserveConflict(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	unlock, err := s.lock(name, true)
	if err != nil {
		return err
	}
	defer unlock()
	_, err = s.preserveLocked(name)
	return err
}

func (s *Store) preserveLocked(name string) (string, error) {
	src := s.bundlePath(name)
	placeholder := false
	if !exists(src) {
		if !exists(s.placeholderPath(name)) {
			return "", notExist(name)
		}
		src = s.cloudPath(name)
		placeholder = true
	}

	id := uuid.NewString()
	if m, err := readManifest(src); err == nil && m.Version != "" {
		id = m.Version
	}
	root := s.conflictRoot(name)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return "", err
	}
	dst := filepath.Join(root, id)
	if exists(dst) {
		id += "-" + uuid.NewString()[:8]
		dst = filepath.Join(root, id)
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("preserve conflict %q: %w", name, err)
	}
	if placeholder {
		_ = os.Remove(s.placeholderPath(name))
	}
	return id, nil
}

// CopyOut copies the materialized bundle into dst under a shared lock and
// strips the manifest from the copy.
func (s *Store) CopyOut(ctx context.Context, name, dst string) (ports.Manifest, error) {
	if err := checkName(name); err != nil {
		return ports.Manifest{}, err
	}
	unlock, err := s.lock(name, false)
	if err != nil {
		return ports.Manifest{}, err
	}
	defer unlock()

	src := s.bundlePath(name)
	if !exists(src) {
		if exists(s.placeholderPath(name)) {
			return ports.Manifest{}, fmt.Errorf("copy out %q: %w", name, ErrNotMaterialized)
		}
		return ports.Manifest{}, notExist(name)
	}
	var m ports.Manifest
	if mp, err := readManifest(src); err == nil {
		m = *mp
	}
	if err := fsutil.CopyTree(ctx, src, dst); err != nil {
		return ports.Manifest{}, err
	}
	_ = os.Remove(filepath.Join(dst, ManifestFile))
	return m, nil
}

func (s *Store) ConflictVersions(_ context.Context, name string) ([]ports.RemoteVersion, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.conflictRoot(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []ports.RemoteVersion
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v := ports.RemoteVersion{ID: e.Name()}
		if m, err := readManifest(filepath.Join(s.conflictRoot(name), e.Name())); err == nil {
			v.Manifest = *m
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Manifest.PublishedAt.Equal(out[j].Manifest.PublishedAt) {
			return out[i].Manifest.PublishedAt.Before(out[j].Manifest.PublishedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CopyVersionOut(ctx context.Context, name, versionID, dst string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := fsutil.ValidateEntityName(versionID); err != nil {
		return fmt.Errorf("%w: version id: %v", ports.ErrInvalidName, err)
	}
	unlock, err := s.lock(name, false)
	if err != nil {
		return err
	}
	defer unlock()

	src := filepath.Join(s.conflictRoot(name), versionID)
	if !exists(src) {
		return fmt.Errorf("conflict version %s/%s: %w", name, versionID, fs.ErrNotExist)
	}
	if err := fsutil.CopyTree(ctx, src, dst); err != nil {
		return err
	}
	_ = os.Remove(filepath.Join(dst, ManifestFile))
	return nil
}

func (s *Store) DiscardConflicts(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	unlock, err := s.lock(name, true)
	if err != nil {
		return err
	}
	defer unlock()
	return os.RemoveAll(s.conflictRoot(name))
}

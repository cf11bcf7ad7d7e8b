// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cloudsync

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/savesync/internal/domain/session/model"
	"github.com/ManuGH/savesync/internal/domain/session/ports"
	"github.com/ManuGH/savesync/internal/domain/session/store"
	"github.com/ManuGH/savesync/internal/infrastructure/remote/fsremote"
	"github.com/ManuGH/savesync/internal/savestore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// device is one participant sharing the remote tree.
type device struct {
	engine *Engine
	local  *savestore.Store
	meta   *store.MemoryStore
}

func newRemote(t *testing.T, delay time.Duration) (*fsremote.Store, string) {
	t.Helper()
	root := t.TempDir()
	r, err := fsremote.Open(fsremote.Options{Root: root, MaterializeDelay: delay})
	require.NoError(t, err)
	require.NoError(t, r.SetIdentity("player@example.com"))
	t.Cleanup(func() { _ = r.Close() })
	return r, root
}

func newDevice(t *testing.T, name string, remote ports.RemoteStore, mutate func(*Config)) *device {
	t.Helper()
	local, err := savestore.Open(filepath.Join(t.TempDir(), "saves"))
	require.NoError(t, err)
	meta := store.NewMemoryStore()

	cfg := Config{
		Device:            name,
		PollInterval:      10 * time.Millisecond,
		DownloadTimeout:   2 * time.Second,
		DeleteGateTimeout: 2 * time.Second,
		AvailabilityPoll:  10 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(cfg, remote, local, meta)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	e.Start(context.Background())
	return &device{engine: e, local: local, meta: meta}
}

// save writes a bundle the way the engine would and records LastSavedAt.
func (d *device) save(t *testing.T, entity, content string) {
	t.Helper()
	dir := d.local.Path(entity)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte(content), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "slots"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slots", "1.bin"), []byte(content+"-slot"), 0o600))

	ctx := context.Background()
	m, err := d.meta.Load(ctx, entity)
	require.NoError(t, err)
	rec := model.EntitySaveMetadata{Name: entity}
	if m != nil {
		rec = *m
	}
	rec.LastSavedAt = time.Now().UTC()
	require.NoError(t, d.meta.Save(ctx, rec))
}

func (d *device) content(t *testing.T, entity string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(d.local.Path(entity), "state.json"))
	require.NoError(t, err)
	return string(b)
}

func (d *device) metadata(t *testing.T, entity string) *model.EntitySaveMetadata {
	t.Helper()
	m, err := d.meta.Load(context.Background(), entity)
	require.NoError(t, err)
	return m
}

// blockingRemote stalls Publish until released so tests can observe an
// upload in flight.
type blockingRemote struct {
	ports.RemoteStore

	entered chan string
	release chan struct{}
	once    sync.Once
}

func newBlockingRemote(inner ports.RemoteStore) *blockingRemote {
	return &blockingRemote{RemoteStore: inner, entered: make(chan string, 4), release: make(chan struct{})}
}

func (b *blockingRemote) Publish(ctx context.Context, scratch, name string, m ports.Manifest, opts ports.PublishOptions) (ports.PublishResult, error) {
	b.entered <- name
	select {
	case <-b.release:
	case <-ctx.Done():
		return ports.PublishResult{}, ctx.Err()
	}
	return b.RemoteStore.Publish(ctx, scratch, name, m, opts)
}

func (b *blockingRemote) unblock() {
	b.once.Do(func() { close(b.release) })
}

// failingRemote fails Publish while fail is set.
type failingRemote struct {
	ports.RemoteStore

	mu   sync.Mutex
	fail error
}

func (f *failingRemote) setFail(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

func (f *failingRemote) Publish(ctx context.Context, scratch, name string, m ports.Manifest, opts ports.PublishOptions) (ports.PublishResult, error) {
	f.mu.Lock()
	err := f.fail
	f.mu.Unlock()
	if err != nil {
		return ports.PublishResult{}, err
	}
	return f.RemoteStore.Publish(ctx, scratch, name, m, opts)
}

// interleavedRemote runs before once, right before the first Publish reaches
// the shared tree, so another device can get in between.
type interleavedRemote struct {
	ports.RemoteStore

	once   sync.Once
	before func()
}

func (r *interleavedRemote) Publish(ctx context.Context, scratch, name string, m ports.Manifest, opts ports.PublishOptions) (ports.PublishResult, error) {
	r.once.Do(r.before)
	return r.RemoteStore.Publish(ctx, scratch, name, m, opts)
}

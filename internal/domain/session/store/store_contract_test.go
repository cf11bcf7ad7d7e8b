// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/savesync/internal/domain/session/model"
	"github.com/ManuGH/savesync/internal/domain/session/ports"
)

func backends(t *testing.T) map[string]func(t *testing.T) ports.MetadataStore {
	return map[string]func(t *testing.T) ports.MetadataStore{
		BackendMemory: func(t *testing.T) ports.MetadataStore { return NewMemoryStore() },
		BackendFile: func(t *testing.T) ports.MetadataStore {
			s, err := NewFileStore(filepath.Join(t.TempDir(), "metadata"))
			require.NoError(t, err)
			return s
		},
		BackendSqlite: func(t *testing.T) ports.MetadataStore {
			s, err := NewSqliteStore(filepath.Join(t.TempDir(), "metadata.sqlite"))
			require.NoError(t, err)
			return s
		},
		BackendBadger: func(t *testing.T) ports.MetadataStore {
			s, err := OpenInMemoryBadgerStore()
			require.NoError(t, err)
			return s
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s ports.MetadataStore)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func TestMetadataStore_LoadMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ports.MetadataStore) {
		m, err := s.Load(context.Background(), "Nobody")
		require.NoError(t, err)
		require.Nil(t, m)
	})
}

func TestMetadataStore_SaveLoadRoundTrip(t *testing.T) {
	saved := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	synced := saved.Add(time.Minute)

	forEachBackend(t, func(t *testing.T, s ports.MetadataStore) {
		ctx := context.Background()
		in := model.EntitySaveMetadata{Name: "Wizard", LastSavedAt: saved, SyncedAt: &synced, RemoteVersion: "v1"}
		require.NoError(t, s.Save(ctx, in))

		out, err := s.Load(ctx, "Wizard")
		require.NoError(t, err)
		require.NotNil(t, out)
		require.Equal(t, "Wizard", out.Name)
		require.True(t, saved.Equal(out.LastSavedAt))
		require.NotNil(t, out.SyncedAt)
		require.True(t, synced.Equal(*out.SyncedAt))
		require.Nil(t, out.DownloadedAt)
		require.Equal(t, "v1", out.RemoteVersion)
	})
}

func TestMetadataStore_UpdatesCreateAndPreserve(t *testing.T) {
	saved := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	at := saved.Add(time.Hour)

	forEachBackend(t, func(t *testing.T, s ports.MetadataStore) {
		ctx := context.Background()

		// Missing record is created.
		require.NoError(t, s.UpdateDownloadedAt(ctx, "Rogue", at, "v7"))
		out, err := s.Load(ctx, "Rogue")
		require.NoError(t, err)
		require.NotNil(t, out)
		require.NotNil(t, out.DownloadedAt)
		require.Equal(t, "v7", out.RemoteVersion)

		// Existing fields survive an update.
		require.NoError(t, s.Save(ctx, model.EntitySaveMetadata{Name: "Wizard", LastSavedAt: saved}))
		require.NoError(t, s.UpdateSyncedAt(ctx, "Wizard", at, "v2"))
		out, err = s.Load(ctx, "Wizard")
		require.NoError(t, err)
		require.True(t, saved.Equal(out.LastSavedAt))
		require.True(t, at.Equal(*out.SyncedAt))
		require.Equal(t, "v2", out.RemoteVersion)
	})
}

func TestMetadataStore_ListSortedAndDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ports.MetadataStore) {
		ctx := context.Background()
		for _, n := range []string{"Zed", "Alpha", "Mid"} {
			require.NoError(t, s.Save(ctx, model.EntitySaveMetadata{Name: n}))
		}
		list, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		require.Equal(t, "Alpha", list[0].Name)
		require.Equal(t, "Zed", list[2].Name)

		require.NoError(t, s.Delete(ctx, "Mid"))
		require.NoError(t, s.Delete(ctx, "Mid"))
		m, err := s.Load(ctx, "Mid")
		require.NoError(t, err)
		require.Nil(t, m)
	})
}

func TestMetadataStore_ConcurrentUpdates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ports.MetadataStore) {
		ctx := context.Background()
		base := time.Now().UTC()
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = s.UpdateSyncedAt(ctx, "Shared", base.Add(time.Duration(i)*time.Second), "v")
			}(i)
		}
		wg.Wait()
		m, err := s.Load(ctx, "Shared")
		require.NoError(t, err)
		require.NotNil(t, m)
		require.NotNil(t, m.SyncedAt)
	})
}

func TestOpenMetadataStore_UnknownBackend(t *testing.T) {
	_, err := OpenMetadataStore("bolt", t.TempDir())
	require.Error(t, err)
}

func TestOpenMetadataStore_DefaultIsFile(t *testing.T) {
	s, err := OpenMetadataStore("", t.TempDir())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	_, ok := s.(*FileStore)
	require.True(t, ok)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ManuGH/savesync/internal/domain/session/model"
)

const badgerPrefix = "meta:"

// BadgerStore keeps metadata as JSON values under key "meta:<entity>".
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a badger database at path.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger metadata store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenInMemoryBadgerStore is used by tests.
func OpenInMemoryBadgerStore() (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func badgerKey(entity string) []byte {
	return []byte(badgerPrefix + entity)
}

func (s *BadgerStore) Load(_ context.Context, entity string) (*model.EntitySaveMetadata, error) {
	var out model.EntitySaveMetadata
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(entity))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) Save(_ context.Context, meta model.EntitySaveMetadata) error {
	buf, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(meta.Name), buf)
	})
}

func (s *BadgerStore) update(entity string, fn func(*model.EntitySaveMetadata)) error {
	return s.db.Update(func(txn *badger.Txn) error {
		out := model.EntitySaveMetadata{Name: entity}
		item, err := txn.Get(badgerKey(entity))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &out)
			}); err != nil {
				return err
			}
		}
		fn(&out)
		buf, err := json.Marshal(out)
		if err != nil {
			return err
		}
		return txn.Set(badgerKey(entity), buf)
	})
}

func (s *BadgerStore) UpdateSyncedAt(_ context.Context, entity string, at time.Time, version string) error {
	return s.update(entity, func(m *model.EntitySaveMetadata) {
		t := at
		m.SyncedAt = &t
		m.RemoteVersion = version
	})
}

func (s *BadgerStore) UpdateDownloadedAt(_ context.Context, entity string, at time.Time, version string) error {
	return s.update(entity, func(m *model.EntitySaveMetadata) {
		t := at
		m.DownloadedAt = &t
		m.RemoteVersion = version
	})
}

func (s *BadgerStore) Delete(_ context.Context, entity string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(entity))
	})
}

func (s *BadgerStore) List(_ context.Context) ([]model.EntitySaveMetadata, error) {
	var out []model.EntitySaveMetadata
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var m model.EntitySaveMetadata
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) Close() error { return s.db.Close() }

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fsremote

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// changeDebounce coalesces bursts such as a multi-file bundle landing.
const changeDebounce = 250 * time.Millisecond

// Changes watches the Saves directory and emits one signal per burst of
// changes. The channel closes when ctx is done.
func (s *Store) Changes(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	dir := filepath.Join(s.root, savesDir)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch directory %s: %w", dir, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer func() { _ = watcher.Close() }()

		var debounce *time.Timer
		var fire <-chan time.Time
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
					continue
				}
				if debounce == nil {
					debounce = time.NewTimer(changeDebounce)
				} else {
					debounce.Reset(changeDebounce)
				}
				fire = debounce.C
			case <-fire:
				fire = nil
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn().Err(err).Msg("fsnotify watcher error")
			}
		}
	}()
	return out, nil
}

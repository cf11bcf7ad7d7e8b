// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build !unix

package fsremote

import "sync"

var fallbackLock sync.RWMutex

// lockFile degrades to a process-wide lock where flock is unavailable.
func lockFile(_ string, exclusive bool) (func(), error) {
	if exclusive {
		fallbackLock.Lock()
		return fallbackLock.Unlock, nil
	}
	fallbackLock.RLock()
	return fallbackLock.RUnlock, nil
}

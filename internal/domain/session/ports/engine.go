// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

// Engine is the external, single-threaded game runtime. It owns all in-memory
// game state. Implementations are not safe for concurrent use; the session
// coordinator serializes every call onto one goroutine.
type Engine interface {
	// LoadSave loads the named entity's save bundle.
	LoadSave(entity string) bool
	// HasGlobalSave reports whether the legacy most-recent slot holds a save.
	HasGlobalSave() bool
	// Resume starts the run loop for the loaded save.
	Resume() error
	// StopAsync requests the run loop to stop. The returned channel closes once
	// the engine has released all file handles.
	StopAsync() <-chan struct{}
	// SaveTo writes the current game to the entity's dedicated path.
	SaveTo(entity string) bool
	// ActiveEntityNameFromSave returns the entity recorded in the global slot.
	ActiveEntityNameFromSave() (string, bool)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

// Wiring errors, returned before anything is started.
var (
	ErrMissingLogger         = errors.New("daemon: logger is required")
	ErrMissingAPIHandler     = errors.New("daemon: control API handler is required")
	ErrMissingManager        = errors.New("daemon: manager is required")
	ErrUnsupportedEngineMode = errors.New("daemon: unsupported engine mode")
)

// ErrManagerNotStarted is returned by Shutdown before Start.
var ErrManagerNotStarted = errors.New("daemon: manager not started")

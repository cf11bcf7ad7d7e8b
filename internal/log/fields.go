// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldFlow          = "flow"
	FieldEntity        = "entity"
	FieldRemoteName    = "remote_name"
	FieldVersion       = "remote_version"
	FieldDevice        = "device"
	FieldFailureID     = "failure_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldOp        = "op"
	FieldAction    = "action"
	FieldResult    = "result"
	FieldScope     = "scope"
	FieldPolicy    = "policy"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath       = "path"
	FieldRemoteRoot = "remote_root"
)

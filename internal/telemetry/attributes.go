// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Save entity attributes
	EntityNameKey    = "savesync.entity"
	RemoteNameKey    = "savesync.remote_name"
	RemoteVersionKey = "savesync.remote_version"
	EntryStateKey    = "savesync.entry_state"

	// Sync operation attributes
	SyncOpKey       = "sync.op"
	SyncScopeKey    = "sync.scope"
	SyncPolicyKey   = "sync.policy"
	SyncQueuedKey   = "sync.queued"
	SyncEntriesKey  = "sync.entries"
	SyncConflictKey = "sync.conflicts"

	// Session attributes
	SessionStateKey  = "session.state"
	SessionActionKey = "session.action"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// EntityAttributes describes the save entity an operation touches. Empty
// values are omitted.
func EntityAttributes(entity, remoteName, version string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if entity != "" {
		attrs = append(attrs, attribute.String(EntityNameKey, entity))
	}
	if remoteName != "" && remoteName != entity {
		attrs = append(attrs, attribute.String(RemoteNameKey, remoteName))
	}
	if version != "" {
		attrs = append(attrs, attribute.String(RemoteVersionKey, version))
	}
	return attrs
}

// DiscoveryAttributes summarizes one discovery pass.
func DiscoveryAttributes(entries, queued int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SyncOpKey, "discover"),
		attribute.Int(SyncEntriesKey, entries),
		attribute.Int(SyncQueuedKey, queued),
	}
}

// SessionAttributes describes a lifecycle request.
func SessionAttributes(state, action string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SessionStateKey, state),
		attribute.String(SessionActionKey, action),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

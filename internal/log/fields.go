// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldService   = "service"
	FieldVersion   = "version"
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldRemote    = "remote_addr"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"
	FieldExitCode  = "exit_code"
	FieldReason    = "reason"
	FieldStream    = "stream"

	// Buffer fields
	FieldChunks    = "chunks"
	FieldBytes     = "bytes"
	FieldPending   = "pending"
	FieldThreshold = "threshold"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Destination fields
	FieldDestination = "destination"
)

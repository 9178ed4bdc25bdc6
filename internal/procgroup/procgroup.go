// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup spawns helper processes in their own process group and
// tears the whole group down with a SIGTERM, grace, SIGKILL sequence.
package procgroup

import "errors"

var (
	// ErrKillFailed is returned when the group survived SIGKILL for the full timeout.
	ErrKillFailed = errors.New("kill operation failed")
)

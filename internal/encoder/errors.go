// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import "errors"

var (
	// ErrInputClosed is returned by Write once the encoder stdin no longer accepts data.
	ErrInputClosed = errors.New("encoder input closed")

	// ErrAlreadyStarted is returned when Start is called more than once.
	ErrAlreadyStarted = errors.New("encoder already started")

	// ErrNoDestination is returned when no destination URL is configured.
	ErrNoDestination = errors.New("encoder destination URL is required")

	// ErrFormatRequired is returned when input or output format is missing.
	ErrFormatRequired = errors.New("encoder input and output formats are required")
)

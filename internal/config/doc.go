// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config resolves the relay configuration.
//
// Precedence is ENV > YAML file > built-in defaults. The YAML decoder is
// strict: unknown keys fail the load. The destination URL carries the
// stream key and is masked wherever configuration is logged.
package config

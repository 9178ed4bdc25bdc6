// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/streamrelay/internal/log"
)

// lookup resolves key from the environment with parse, falling back to def
// when the variable is unset, empty or malformed. Every outcome is logged
// with its source; values of sensitive keys are never logged.
func lookup[T any](key string, def T, parse func(string) (T, error)) T {
	logger := log.WithComponent("config")

	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		ev := logger.Debug().Str("key", key).Str("source", "default")
		if !isSensitiveKey(key) {
			ev = ev.Str("default", fmt.Sprint(def))
		}
		if ok {
			ev.Msg("using default value (environment variable is empty)")
		} else {
			ev.Msg("using default value")
		}
		return def
	}

	v, err := parse(raw)
	if err != nil {
		warn := logger.Warn().Str("key", key).Err(err)
		if !isSensitiveKey(key) {
			warn = warn.Str("value", raw)
		}
		warn.Msg("invalid environment variable, using default")
		return def
	}

	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if isSensitiveKey(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Str("value", raw)
	}
	ev.Msg("using environment variable")
	return v
}

// ParseString reads a string variable.
func ParseString(key, defaultValue string) string {
	return lookup(key, defaultValue, func(s string) (string, error) { return s, nil })
}

// ParseInt reads a base-10 integer variable.
func ParseInt(key string, defaultValue int) int {
	return lookup(key, defaultValue, strconv.Atoi)
}

// ParseDuration reads a Go duration such as "5s" or "250ms".
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return lookup(key, defaultValue, time.ParseDuration)
}

// ParseBool accepts true/false, 1/0 and yes/no, case-insensitively.
func ParseBool(key string, defaultValue bool) bool {
	return lookup(key, defaultValue, parseBool)
}

// ParseFloat reads a float64 variable.
func ParseFloat(key string, defaultValue float64) float64 {
	return lookup(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean: %q", s)
	}
}

// expandEnv expands ${VAR} and $VAR so the file can reference the stream key
// instead of containing it.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

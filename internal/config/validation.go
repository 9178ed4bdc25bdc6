// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the resolved configuration. All problems are reported at once.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(cfg.Server.ListenAddr) == "" {
		add("server.listenAddr must not be empty")
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		add("server.shutdownTimeout must be positive")
	}

	if cfg.Ingest.FlushThreshold < 1 {
		add("ingest.flushThreshold must be >= 1, got %d", cfg.Ingest.FlushThreshold)
	}
	if cfg.Ingest.MaxChunkBytes < 1 {
		add("ingest.maxChunkBytes must be >= 1, got %d", cfg.Ingest.MaxChunkBytes)
	}
	if cfg.Ingest.ConnRateLimit < 0 {
		add("ingest.connRateLimit must be >= 0, got %d", cfg.Ingest.ConnRateLimit)
	}
	if cfg.Ingest.ConnRateLimit > 0 && cfg.Ingest.ConnRateWindow <= 0 {
		add("ingest.connRateWindow must be positive when connRateLimit is set")
	}

	if strings.TrimSpace(cfg.Encoder.BinPath) == "" {
		add("encoder.binPath must not be empty")
	}
	if err := validateDestination(cfg.Encoder.DestinationURL); err != nil {
		errs = append(errs, err)
	}
	if cfg.Encoder.QueueSize < 1 {
		add("encoder.queueSize must be >= 1, got %d", cfg.Encoder.QueueSize)
	}
	switch cfg.Encoder.Overflow {
	case OverflowDropOldest, OverflowBlock:
	default:
		add("encoder.overflow must be %q or %q, got %q", OverflowDropOldest, OverflowBlock, cfg.Encoder.Overflow)
	}
	if cfg.Encoder.GracePeriod <= 0 {
		add("encoder.gracePeriod must be positive")
	}
	if cfg.Encoder.KillTimeout <= 0 {
		add("encoder.killTimeout must be positive")
	}
	if cfg.Encoder.ShutdownTimeout < cfg.Encoder.GracePeriod {
		add("encoder.shutdownTimeout (%s) must be >= encoder.gracePeriod (%s)", cfg.Encoder.ShutdownTimeout, cfg.Encoder.GracePeriod)
	}
	if cfg.Encoder.FrameRate <= 0 || cfg.Encoder.GOPSize <= 0 || cfg.Encoder.SampleRate <= 0 {
		add("encoder.frameRate, encoder.gopSize and encoder.sampleRate must be positive")
	}

	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Exporter {
		case "grpc", "http":
		default:
			add("tracing.exporter must be grpc or http, got %q", cfg.Tracing.Exporter)
		}
		if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
			add("tracing.samplingRate must be within [0,1], got %v", cfg.Tracing.SamplingRate)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// validateDestination never echoes the raw URL; it carries the stream key.
func validateDestination(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("encoder.destinationURL is required (set RELAY_DESTINATION_URL)")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("encoder.destinationURL is not a valid URL")
	}
	if u.Scheme == "" {
		return fmt.Errorf("encoder.destinationURL %s has no scheme", MaskURL(raw))
	}
	return nil
}

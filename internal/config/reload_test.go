// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_AppliesChangedLogLevel(t *testing.T) {
	path := writeConfig(t, "logLevel: info\nencoder:\n  destinationURL: \"rtmp://host/app/key\"\n")

	applied := make(chan AppConfig, 4)
	w := NewWatcher(path, "", zerolog.Nop(), func(cfg AppConfig) { applied <- cfg })
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\nencoder:\n  destinationURL: \"rtmp://host/app/key\"\n"), 0o600))

	select {
	case cfg := <-applied:
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.GreaterOrEqual(t, w.Reloads(), 1)
	case <-time.After(3 * time.Second):
		t.Fatal("config change was not applied")
	}
}

func TestWatcher_InvalidChangeKeepsCurrent(t *testing.T) {
	path := writeConfig(t, "encoder:\n  destinationURL: \"rtmp://host/app/key\"\n")

	applied := make(chan AppConfig, 1)
	w := NewWatcher(path, "", zerolog.Nop(), func(cfg AppConfig) { applied <- cfg })
	require.NoError(t, os.WriteFile(path, []byte("encoder:\n  nonsense: true\n"), 0o600))

	w.reload()

	select {
	case <-applied:
		t.Fatal("invalid config must not be applied")
	default:
	}
	assert.Equal(t, 0, w.Reloads())
}

func TestWatcher_EmptyPathIsNoop(t *testing.T) {
	w := NewWatcher("", "", zerolog.Nop(), func(AppConfig) {})
	assert.NoError(t, w.Run(context.Background()))
}

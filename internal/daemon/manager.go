// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrelay/internal/config"
	rlog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/telemetry"
)

const (
	defaultShutdownTimeout        = 15 * time.Second
	defaultEncoderShutdownTimeout = 12 * time.Second
	defaultDrainTimeout           = 5 * time.Second
)

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Manager manages the daemon lifecycle: starting servers, handling shutdown.
type Manager interface {
	// Start starts all configured servers and blocks until shutdown
	Start(ctx context.Context) error

	// Shutdown stops the relay pipeline and all servers
	Shutdown(ctx context.Context) error

	// RegisterShutdownHook registers a function to be called during shutdown
	RegisterShutdownHook(name string, hook ShutdownHook)

	// Addr returns the bound API address, or "" before Start has bound it
	Addr() string
}

type manager struct {
	serverCfg config.ServerConfig
	deps      Deps
	reporter  telemetry.Reporter

	apiServer     *http.Server
	metricsServer *http.Server
	apiAddr       string

	shutdownHooks []namedHook

	started  bool
	stopping bool
	mu       sync.Mutex

	logger zerolog.Logger
}

// namedHook represents a shutdown hook with a name for logging
type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a new daemon manager with the given configuration and dependencies.
func NewManager(serverCfg config.ServerConfig, deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if serverCfg.ShutdownTimeout <= 0 {
		serverCfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if deps.DrainTimeout <= 0 {
		deps.DrainTimeout = defaultDrainTimeout
	}
	if deps.EncoderShutdownTimeout <= 0 {
		deps.EncoderShutdownTimeout = defaultEncoderShutdownTimeout
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = telemetry.Nop{}
	}

	return &manager{
		serverCfg:     serverCfg,
		deps:          deps,
		reporter:      reporter,
		logger:        deps.Logger.With().Str(rlog.FieldComponent, "manager").Logger(),
		shutdownHooks: make([]namedHook, 0),
	}, nil
}

// Start binds the servers and blocks until ctx is cancelled or a server fails.
// Bind failures are returned before anything is served.
func (m *manager) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("start context is nil")
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrManagerAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info().
		Str(rlog.FieldEvent, "manager.start").
		Str("listen", m.serverCfg.ListenAddr).
		Str("metrics_listen", m.deps.MetricsAddr).
		Dur("shutdown_timeout", m.serverCfg.ShutdownTimeout).
		Msg("starting daemon manager")

	errChan := make(chan error, 2)

	if m.deps.MetricsHandler != nil && m.deps.MetricsAddr != "" {
		if err := m.startMetricsServer(errChan); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}
	if err := m.startAPIServer(errChan); err != nil {
		m.closeServers()
		return fmt.Errorf("failed to start API server: %w", err)
	}

	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Str(rlog.FieldEvent, "manager.server_failed").Msg("server error, initiating shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := m.Shutdown(shutdownCtx); shutdownErr != nil {
			return fmt.Errorf("server error and shutdown failure: %w", errors.Join(err, shutdownErr))
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Str(rlog.FieldEvent, "manager.signal").Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
		defer cancel()
		return m.Shutdown(shutdownCtx)
	}
}

func (m *manager) newServer(handler http.Handler) *http.Server {
	// No ReadTimeout: it would stay armed on hijacked websocket connections.
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: m.serverCfg.ReadHeaderTimeout,
		IdleTimeout:       m.serverCfg.IdleTimeout,
		MaxHeaderBytes:    m.serverCfg.MaxHeaderBytes,
	}
}

func (m *manager) startAPIServer(errChan chan<- error) error {
	ln, err := net.Listen("tcp", m.serverCfg.ListenAddr)
	if err != nil {
		return err
	}
	srv := m.newServer(m.deps.APIHandler)

	m.mu.Lock()
	m.apiServer = srv
	m.apiAddr = ln.Addr().String()
	m.mu.Unlock()

	m.logger.Info().
		Str(rlog.FieldEvent, "api.server.listening").
		Str("addr", ln.Addr().String()).
		Msg("API server listening")

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().
				Err(err).
				Str(rlog.FieldEvent, "api.server.failed").
				Msg("API server failed")
			errChan <- fmt.Errorf("API server: %w", err)
		}
	}()
	return nil
}

func (m *manager) startMetricsServer(errChan chan<- error) error {
	ln, err := net.Listen("tcp", m.deps.MetricsAddr)
	if err != nil {
		return err
	}
	srv := m.newServer(m.deps.MetricsHandler)

	m.mu.Lock()
	m.metricsServer = srv
	m.mu.Unlock()

	m.logger.Info().
		Str(rlog.FieldEvent, "metrics.server.listening").
		Str("addr", ln.Addr().String()).
		Msg("metrics server listening")

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().
				Err(err).
				Str(rlog.FieldEvent, "metrics.server.failed").
				Msg("metrics server failed")
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	return nil
}

// closeServers drops whatever was bound when Start fails halfway.
func (m *manager) closeServers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.metricsServer != nil {
		_ = m.metricsServer.Close()
		m.metricsServer = nil
	}
	if m.apiServer != nil {
		_ = m.apiServer.Close()
		m.apiServer = nil
	}
}

// Addr returns the bound API address.
func (m *manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apiAddr
}

// Shutdown stops the relay in order: refuse new sessions, settle pending
// chunks, stop the encoder, close sessions and servers, then run hooks.
// Only the first call does any work.
func (m *manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("shutdown context is nil")
	}

	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	apiServer, metricsServer := m.apiServer, m.metricsServer
	m.mu.Unlock()

	start := time.Now()
	m.logger.Info().Str(rlog.FieldEvent, "manager.shutdown").Msg("shutting down relay")

	// Bounded and independent from caller cancellation.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	fail := func(step string, err error) {
		errs = append(errs, fmt.Errorf("%s: %w", step, err))
		m.reporter.Report(shutdownCtx, telemetry.Event{
			Kind:    telemetry.KindShutdown,
			Err:     err,
			Message: "shutdown step failed",
			Fields:  map[string]any{"step": step},
		})
	}

	// 1. No new sessions.
	m.deps.Listener.StopAccepting()
	openSessions := m.deps.Listener.Sessions()

	// 2. Settle the partial batch.
	dropped, err := m.closeAggregator(shutdownCtx)
	if err != nil {
		fail("aggregator close", err)
	}
	m.logger.Info().
		Str(rlog.FieldEvent, "aggregator.closed").
		Bool("flush", m.deps.FlushOnShutdown).
		Int("dropped_chunks", dropped).
		Msg("aggregator closed")

	// 3. Stop the encoder. It reports its own termination failures.
	encCtx, encCancel := context.WithTimeout(shutdownCtx, m.deps.EncoderShutdownTimeout)
	if err := m.deps.Encoder.Shutdown(encCtx); err != nil {
		errs = append(errs, fmt.Errorf("encoder shutdown: %w", err))
	}
	encCancel()

	// 4. Sessions and servers.
	if err := m.deps.Listener.CloseSessions(shutdownCtx); err != nil {
		fail("close sessions", err)
	}
	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			fail("API server shutdown", err)
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			fail("metrics server shutdown", err)
		}
	}

	// 5. Hooks, newest first.
	m.mu.Lock()
	hooks := append([]namedHook(nil), m.shutdownHooks...)
	m.mu.Unlock()
	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		hookStart := time.Now()
		if err := hook.hook(shutdownCtx); err != nil {
			m.logger.Error().
				Err(err).
				Str("hook", hook.name).
				Dur("duration", time.Since(hookStart)).
				Msg("shutdown hook failed")
			fail("hook "+hook.name, err)
			continue
		}
		m.logger.Debug().
			Str("hook", hook.name).
			Dur("duration", time.Since(hookStart)).
			Msg("shutdown hook completed")
	}

	stats := m.deps.Aggregator.Stats()
	m.logger.Info().
		Str(rlog.FieldEvent, "relay.summary").
		Int("sessions_open", openSessions).
		Int64("chunks_appended", stats.Appended).
		Int64("flushes", stats.Flushes).
		Int64("bytes_forwarded", stats.BytesForwarded).
		Int64("chunks_discarded", stats.Dropped).
		Int64("encoder_batches_dropped", m.deps.Encoder.Dropped()).
		Msg("relay totals")

	if len(errs) > 0 {
		m.logger.Error().
			Int("error_count", len(errs)).
			Dur("duration", time.Since(start)).
			Msg("shutdown completed with errors")
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	m.logger.Info().
		Str(rlog.FieldEvent, "manager.stopped").
		Dur("duration", time.Since(start)).
		Msg("relay stopped cleanly")
	return nil
}

// closeAggregator closes the aggregator within DrainTimeout. An append
// blocked on a full encoder queue holds the aggregator lock, so on timeout
// the encoder input is closed to release it before waiting again.
func (m *manager) closeAggregator(ctx context.Context) (int, error) {
	type result struct {
		dropped int
		err     error
	}
	done := make(chan result, 1)
	go func() {
		dropped, err := m.deps.Aggregator.Close(m.deps.FlushOnShutdown)
		done <- result{dropped, err}
	}()

	timer := time.NewTimer(m.deps.DrainTimeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.dropped, r.err
	case <-ctx.Done():
		return 0, fmt.Errorf("aggregator close: %w", ctx.Err())
	case <-timer.C:
	}

	m.logger.Warn().
		Str(rlog.FieldEvent, "aggregator.close_timeout").
		Dur("drain_timeout", m.deps.DrainTimeout).
		Msg("encoder not consuming input, closing it")
	m.deps.Encoder.CloseInput()

	select {
	case r := <-done:
		return r.dropped, r.err
	case <-ctx.Done():
		return 0, fmt.Errorf("aggregator close: %w", ctx.Err())
	}
}

// RegisterShutdownHook registers a cleanup function to be called during shutdown.
// Hooks are executed in reverse registration order (LIFO).
func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownHooks = append(m.shutdownHooks, namedHook{
		name: name,
		hook: hook,
	})
	m.logger.Debug().Str("hook", name).Msg("registered shutdown hook")
}

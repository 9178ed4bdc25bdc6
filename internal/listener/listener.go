// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package listener accepts capture clients over websocket and hands every
// media chunk to the aggregator.
package listener

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/websocket"

	rlog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/metrics"
	"github.com/ManuGH/streamrelay/internal/telemetry"
)

// DefaultMaxChunkBytes caps one media chunk when Config leaves it unset.
const DefaultMaxChunkBytes = 8 << 20

// Appender receives decoded chunks. It must not block on the encoder.
type Appender interface {
	Append(chunk []byte) error
}

// Config configures a Listener.
type Config struct {
	MaxChunkBytes int
}

// Session is one connected capture client.
type Session struct {
	ID          string
	Remote      string
	ConnectedAt time.Time

	conn   *websocket.Conn
	chunks atomic.Int64
	bytes  atomic.Int64
	closed atomic.Bool
}

// Listener is the http.Handler mounted at /ws.
type Listener struct {
	sink     Appender
	reporter telemetry.Reporter
	logger   zerolog.Logger
	tracer   trace.Tracer
	codec    websocket.Codec
	maxFrame int
	ws       websocket.Server

	accepting atomic.Bool

	mu       sync.Mutex
	closing  bool
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// New creates a Listener that is accepting sessions.
func New(cfg Config, sink Appender, reporter telemetry.Reporter) *Listener {
	if cfg.MaxChunkBytes <= 0 {
		cfg.MaxChunkBytes = DefaultMaxChunkBytes
	}
	if reporter == nil {
		reporter = telemetry.Nop{}
	}
	l := &Listener{
		sink:     sink,
		reporter: reporter,
		logger:   rlog.WithComponent("listener"),
		tracer:   telemetry.Tracer("streamrelay/listener"),
		codec:    newCodec(cfg.MaxChunkBytes),
		// base64 text envelopes are a third larger than the chunk they carry.
		maxFrame: cfg.MaxChunkBytes/3*4 + 4096,
		sessions: make(map[string]*Session),
	}
	l.ws = websocket.Server{
		Handshake: acceptAnyOrigin,
		Handler:   l.serveConn,
	}
	l.accepting.Store(true)
	return l
}

// acceptAnyOrigin records the Origin header without enforcing it.
func acceptAnyOrigin(cfg *websocket.Config, r *http.Request) error {
	origin, err := websocket.Origin(cfg, r)
	if err == nil {
		cfg.Origin = origin
	}
	return nil
}

// ServeHTTP upgrades the request unless the listener stopped accepting.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !l.accepting.Load() {
		metrics.IncSession("rejected")
		http.Error(w, "relay is shutting down", http.StatusServiceUnavailable)
		return
	}
	l.ws.ServeHTTP(w, r)
}

// Accepting reports whether new sessions are admitted.
func (l *Listener) Accepting() bool {
	return l.accepting.Load()
}

// StopAccepting makes new upgrade requests fail with 503. Open sessions keep running.
func (l *Listener) StopAccepting() {
	if l.accepting.Swap(false) {
		l.logger.Info().
			Str(rlog.FieldEvent, "listener.stop_accepting").
			Int("sessions", l.Sessions()).
			Msg("no longer accepting sessions")
	}
}

// CloseSessions closes every open websocket and waits for their handlers
// to return or for ctx to end.
func (l *Listener) CloseSessions(ctx context.Context) error {
	l.StopAccepting()

	l.mu.Lock()
	l.closing = true
	open := make([]*Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		open = append(open, s)
	}
	l.mu.Unlock()

	for _, s := range open {
		s.closed.Store(true)
		_ = s.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sessions returns the number of open sessions.
func (l *Listener) Sessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

func (l *Listener) register(conn *websocket.Conn) *Session {
	s := &Session{
		ID:          uuid.NewString(),
		Remote:      conn.Request().RemoteAddr,
		ConnectedAt: time.Now(),
		conn:        conn,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closing {
		return nil
	}
	l.sessions[s.ID] = s
	l.wg.Add(1)
	metrics.SessionsActive.Set(float64(len(l.sessions)))
	metrics.IncSession("opened")
	return s
}

func (l *Listener) unregister(s *Session) {
	l.mu.Lock()
	delete(l.sessions, s.ID)
	metrics.SessionsActive.Set(float64(len(l.sessions)))
	l.mu.Unlock()

	metrics.IncSession("closed")
	l.wg.Done()
}

func (l *Listener) serveConn(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()
	conn.PayloadType = websocket.BinaryFrame
	conn.MaxPayloadBytes = l.maxFrame

	sess := l.register(conn)
	if sess == nil {
		metrics.IncSession("rejected")
		return
	}
	defer l.unregister(sess)

	ctx := rlog.ContextWithSessionID(conn.Request().Context(), sess.ID)
	ctx, span := l.tracer.Start(ctx, "relay.session", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("client.address", sess.Remote),
	))
	defer span.End()

	logger := rlog.WithContext(ctx, l.logger).With().Str(rlog.FieldRemote, sess.Remote).Logger()
	logger.Info().Str(rlog.FieldEvent, "session.opened").Msg("capture client connected")

	reason := l.readLoop(ctx, sess, logger)

	span.SetAttributes(
		attribute.Int64("session.chunks", sess.chunks.Load()),
		attribute.Int64("session.bytes", sess.bytes.Load()),
	)
	logger.Info().
		Str(rlog.FieldEvent, "session.closed").
		Str(rlog.FieldReason, reason).
		Int64(rlog.FieldChunks, sess.chunks.Load()).
		Int64(rlog.FieldBytes, sess.bytes.Load()).
		Dur("duration", time.Since(sess.ConnectedAt)).
		Msg("capture client disconnected")
}

// readLoop receives until the transport fails and returns why it stopped.
func (l *Listener) readLoop(ctx context.Context, sess *Session, logger zerolog.Logger) string {
	for {
		var ev Event
		err := l.codec.Receive(sess.conn, &ev)
		switch {
		case err == nil:
			l.handleEvent(ctx, sess, ev, logger)
		case errors.Is(err, ErrDecode), errors.Is(err, websocket.ErrFrameTooLarge):
			metrics.IncEventRejected(rejectReason(err))
			l.reporter.Report(ctx, telemetry.Event{
				Kind:    telemetry.KindChunk,
				Err:     err,
				Message: "dropped undecodable event",
				Fields:  map[string]any{rlog.FieldSessionID: sess.ID},
			})
		case errors.Is(err, io.EOF):
			return "client_closed"
		case sess.closed.Load():
			return "server_closed"
		default:
			l.reporter.Report(ctx, telemetry.Event{
				Kind:    telemetry.KindTransport,
				Err:     err,
				Message: "session transport failed",
				Fields:  map[string]any{rlog.FieldSessionID: sess.ID},
			})
			return "transport_error"
		}
	}
}

func rejectReason(err error) string {
	if errors.Is(err, websocket.ErrFrameTooLarge) {
		return "too_large"
	}
	return "decode"
}

func (l *Listener) handleEvent(ctx context.Context, sess *Session, ev Event, logger zerolog.Logger) {
	if ev.Name != EventBinaryStream {
		metrics.IncEventRejected("unknown_event")
		logger.Debug().
			Str(rlog.FieldEvent, "session.event_ignored").
			Str("name", ev.Name).
			Msg("ignoring event")
		return
	}

	if err := l.sink.Append(ev.Data); err != nil {
		metrics.IncEventRejected("append")
		l.reporter.Report(ctx, telemetry.Event{
			Kind:    telemetry.KindChunk,
			Err:     err,
			Message: "chunk not accepted",
			Fields: map[string]any{
				rlog.FieldSessionID: sess.ID,
				rlog.FieldBytes:     len(ev.Data),
			},
		})
		return
	}
	sess.chunks.Add(1)
	sess.bytes.Add(int64(len(ev.Data)))
}

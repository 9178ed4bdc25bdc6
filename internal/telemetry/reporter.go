// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	rlog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/metrics"
)

// Kind classifies a reported error.
type Kind string

const (
	// KindTransport covers websocket/session failures. Session scoped.
	KindTransport Kind = "transport"
	// KindChunk covers a single inbound event that could not be appended.
	KindChunk Kind = "chunk"
	// KindEncoderWrite covers failed writes to the encoder stdin.
	KindEncoderWrite Kind = "encoder_write"
	// KindEncoderCrash covers the encoder exiting while it was expected to run.
	KindEncoderCrash Kind = "encoder_crash"
	// KindShutdown covers failures while stopping the pipeline.
	KindShutdown Kind = "shutdown"
)

// Operator reports whether the kind needs a human to act on it.
func (k Kind) Operator() bool {
	return k == KindEncoderCrash || k == KindShutdown
}

func (k Kind) level() zerolog.Level {
	if k.Operator() {
		return zerolog.ErrorLevel
	}
	return zerolog.WarnLevel
}

// Event is one structured error report.
type Event struct {
	Kind    Kind
	Err     error
	Message string
	Fields  map[string]any
}

// Reporter is the error sink shared by every component.
type Reporter interface {
	Report(ctx context.Context, ev Event)
}

// Sink logs, counts and traces reported events. Operator events are also
// published on a buffered channel whose consumer logs them at error level;
// the sink then logs them at debug. When the channel is full the publish is
// dropped and the sink logs the event at error level itself.
type Sink struct {
	logger   zerolog.Logger
	operator chan Event
	dropped  atomic.Int64
}

// NewSink creates a Sink with room for buffer pending operator events.
func NewSink(logger zerolog.Logger, buffer int) *Sink {
	if buffer < 1 {
		buffer = 16
	}
	return &Sink{
		logger:   logger,
		operator: make(chan Event, buffer),
	}
}

// NewDefaultSink creates a Sink bound to the "telemetry" component logger.
func NewDefaultSink() *Sink {
	return NewSink(rlog.WithComponent("telemetry"), 16)
}

// Report implements Reporter.
func (s *Sink) Report(ctx context.Context, ev Event) {
	if ctx == nil {
		ctx = context.Background()
	}
	metrics.IncError(string(ev.Kind))

	level := ev.Kind.level()
	if ev.Kind.Operator() {
		select {
		case s.operator <- ev:
			level = zerolog.DebugLevel
		default:
			s.dropped.Add(1)
		}
	}

	l := rlog.WithContext(ctx, s.logger)
	entry := l.WithLevel(level).
		Str(rlog.FieldEvent, "error."+string(ev.Kind)).
		Str("kind", string(ev.Kind))
	if ev.Err != nil {
		entry = entry.Err(ev.Err)
	}
	if len(ev.Fields) > 0 {
		entry = entry.Fields(ev.Fields)
	}
	msg := ev.Message
	if msg == "" {
		msg = string(ev.Kind) + " error"
	}
	entry.Msg(msg)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		attrs := []attribute.KeyValue{attribute.String("error.kind", string(ev.Kind))}
		if ev.Err != nil {
			attrs = append(attrs, attribute.String("error.message", ev.Err.Error()))
		}
		span.AddEvent(msg, trace.WithAttributes(attrs...))
	}
}

// Operator returns the channel of events that need operator attention.
func (s *Sink) Operator() <-chan Event {
	return s.operator
}

// DroppedOperatorEvents returns how many operator publishes were skipped.
func (s *Sink) DroppedOperatorEvents() int64 {
	return s.dropped.Load()
}

// Nop is a Reporter that discards everything.
type Nop struct{}

// Report implements Reporter.
func (Nop) Report(context.Context, Event) {}

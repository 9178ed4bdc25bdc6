// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrelay/internal/aggregator"
	"github.com/ManuGH/streamrelay/internal/encoder"
	"github.com/ManuGH/streamrelay/internal/telemetry"
)

// SessionListener is the websocket side of the relay.
type SessionListener interface {
	StopAccepting()
	CloseSessions(ctx context.Context) error
	Sessions() int
}

// ChunkSink is the aggregator as seen at shutdown.
type ChunkSink interface {
	Close(flush bool) (dropped int, err error)
	Stats() aggregator.Stats
}

// EncoderProcess is the encoder supervisor as seen by the daemon.
type EncoderProcess interface {
	CloseInput()
	Shutdown(ctx context.Context) error
	Done() <-chan struct{}
	Exit() (encoder.ExitStatus, bool)
	Dropped() int64
}

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	// Logger is the structured logger for the daemon
	Logger zerolog.Logger

	// APIHandler serves /ws, health probes and static files
	APIHandler http.Handler

	// MetricsHandler is served on MetricsAddr when both are set
	MetricsHandler http.Handler
	MetricsAddr    string

	Listener   SessionListener
	Aggregator ChunkSink
	Encoder    EncoderProcess

	// Reporter receives shutdown failures. Nil discards them.
	Reporter telemetry.Reporter

	// FlushOnShutdown forwards pending chunks instead of discarding them.
	FlushOnShutdown bool

	// DrainTimeout bounds the aggregator close. When it expires the encoder
	// input is closed so writers blocked on a stalled encoder give up.
	DrainTimeout time.Duration

	// EncoderShutdownTimeout bounds the encoder stop sequence.
	EncoderShutdownTimeout time.Duration
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	switch {
	case d.Listener == nil:
		return fmt.Errorf("%w: listener", ErrMissingPipeline)
	case d.Aggregator == nil:
		return fmt.Errorf("%w: aggregator", ErrMissingPipeline)
	case d.Encoder == nil:
		return fmt.Errorf("%w: encoder", ErrMissingPipeline)
	}
	return nil
}

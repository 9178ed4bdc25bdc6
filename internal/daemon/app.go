// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	rlog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/telemetry"
)

// Runner is a background loop that stops when ctx ends.
type Runner interface {
	Run(ctx context.Context) error
}

// App owns the long-lived background loops and delegates server
// management and the shutdown sequence to Manager.
type App struct {
	logger   zerolog.Logger
	manager  Manager
	watcher  Runner
	encoder  EncoderProcess
	operator <-chan telemetry.Event
}

// NewApp creates a new App orchestrator. watcher, enc and operator are optional.
func NewApp(logger zerolog.Logger, manager Manager, watcher Runner, enc EncoderProcess, operator <-chan telemetry.Event) *App {
	return &App{
		logger:   logger,
		manager:  manager,
		watcher:  watcher,
		encoder:  enc,
		operator: operator,
	}
}

// Run starts all owned background loops and blocks until ctx is cancelled
// and the manager has finished its shutdown, or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, gctx := errgroup.WithContext(ctx)
	managerDone := make(chan struct{})

	// Config watcher is best-effort.
	if a.watcher != nil {
		g.Go(func() error {
			if err := a.watcher.Run(gctx); err != nil {
				a.logger.Warn().Err(err).Str(rlog.FieldEvent, "config.watcher_failed").Msg("config watcher stopped")
			}
			return nil
		})
	}

	// The encoder is never respawned; losing it needs a human. With an
	// operator channel the crash event carries the exit details, otherwise
	// the exit status is read once the encoder is done. The drain outlives
	// the manager so failures reported during shutdown are still alerted.
	if a.operator != nil {
		g.Go(func() error {
			for {
				select {
				case ev := <-a.operator:
					a.alert(ev)
				case <-managerDone:
					for {
						select {
						case ev := <-a.operator:
							a.alert(ev)
						default:
							return nil
						}
					}
				}
			}
		})
	} else if a.encoder != nil {
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-a.encoder.Done():
				if exit, ok := a.encoder.Exit(); ok && exit.Unexpected() {
					a.logger.Error().
						Str(rlog.FieldEvent, "encoder.lost").
						Int(rlog.FieldExitCode, exit.Code).
						Str(rlog.FieldReason, exit.Reason).
						Strs("stderr_tail", exit.Stderr).
						Msg(encoderLostMsg)
				}
			}
			return nil
		})
	}

	// Main server lifecycle.
	g.Go(func() error {
		defer close(managerDone)
		err := a.manager.Start(gctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}

const encoderLostMsg = "encoder terminated; media is no longer forwarded until the relay is restarted"

// alert logs one operator event. The sink logged it at debug level only.
func (a *App) alert(ev telemetry.Event) {
	name, msg := "operator.alert", ev.Message
	if ev.Kind == telemetry.KindEncoderCrash {
		name, msg = "encoder.lost", encoderLostMsg
	}
	entry := a.logger.Error().
		Str(rlog.FieldEvent, name).
		Str("kind", string(ev.Kind))
	if ev.Err != nil {
		entry = entry.Err(ev.Err)
	}
	if len(ev.Fields) > 0 {
		entry = entry.Fields(ev.Fields)
	}
	entry.Msg(msg)
}

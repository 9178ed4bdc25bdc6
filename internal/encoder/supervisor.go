// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	rlog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/metrics"
	"github.com/ManuGH/streamrelay/internal/procgroup"
	"github.com/ManuGH/streamrelay/internal/telemetry"
)

// OverflowPolicy decides what Write does when the queue is full.
type OverflowPolicy string

const (
	// OverflowDropOldest discards the oldest queued batch to make room.
	OverflowDropOldest OverflowPolicy = "drop-oldest"
	// OverflowBlock makes Write wait for room or for the input to close.
	OverflowBlock OverflowPolicy = "block"
)

const (
	defaultBinPath     = "ffmpeg"
	defaultQueueSize   = 64
	defaultGracePeriod = 5 * time.Second
	defaultKillTimeout = 5 * time.Second
	defaultEOFWait     = time.Second

	stderrRingLines = 50
	crashTailLines  = 20
)

// Config configures a Supervisor.
type Config struct {
	BinPath  string
	Settings Settings
	// Args replaces the argv built from Settings when non-empty.
	Args []string

	GracePeriod time.Duration
	KillTimeout time.Duration
	// EOFWait is how long Shutdown lets the process exit on its own after
	// stdin is closed before signalling it.
	EOFWait   time.Duration
	QueueSize int
	Overflow  OverflowPolicy
}

func (c Config) withDefaults() Config {
	if c.BinPath == "" {
		c.BinPath = defaultBinPath
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = defaultGracePeriod
	}
	if c.KillTimeout <= 0 {
		c.KillTimeout = defaultKillTimeout
	}
	if c.EOFWait < 0 {
		c.EOFWait = 0
	} else if c.EOFWait == 0 {
		c.EOFWait = defaultEOFWait
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.Overflow != OverflowBlock {
		c.Overflow = OverflowDropOldest
	}
	return c
}

// Supervisor owns the single long-lived encoder process.
// Only its writer goroutine touches the process stdin.
type Supervisor struct {
	cfg      Config
	reporter telemetry.Reporter
	logger   zerolog.Logger

	closedLog rate.Sometimes
	dropLog   rate.Sometimes

	mu           sync.Mutex
	state        State
	cmd          *exec.Cmd
	stdin        io.WriteCloser
	startedAt    time.Time
	exit         ExitStatus
	hasExit      bool
	terminations int

	accepting   atomic.Bool
	stdinBroken atomic.Bool
	dropped     atomic.Int64

	inputOnce   sync.Once
	inputClosed chan struct{}
	stdinOnce   sync.Once
	queue       chan []byte
	writerDone  chan struct{}
	exited      chan struct{}
	done        chan struct{}

	stderr      *LineRing
	stdoutRelay *lineRelay
	stderrRelay *lineRelay
}

// NewSupervisor creates a Supervisor in state Starting. A nil reporter discards events.
func NewSupervisor(cfg Config, reporter telemetry.Reporter) *Supervisor {
	cfg = cfg.withDefaults()
	if reporter == nil {
		reporter = telemetry.Nop{}
	}
	logger := rlog.WithComponent("encoder")
	ring := NewLineRing(stderrRingLines)
	s := &Supervisor{
		cfg:         cfg,
		reporter:    reporter,
		logger:      logger,
		closedLog:   rate.Sometimes{First: 1, Interval: 5 * time.Second},
		dropLog:     rate.Sometimes{First: 1, Interval: 5 * time.Second},
		inputClosed: make(chan struct{}),
		queue:       make(chan []byte, cfg.QueueSize),
		writerDone:  make(chan struct{}),
		exited:      make(chan struct{}),
		done:        make(chan struct{}),
		stderr:      ring,
		stdoutRelay: newLineRelay("stdout", logger, nil),
		stderrRelay: newLineRelay("stderr", logger, ring),
	}
	metrics.SetEncoderState(StateStarting.String(), stateNames)
	return s
}

// Start spawns the encoder in its own process group. The process is not
// bound to ctx; it runs until it exits or Shutdown stops it.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStarting {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	args := s.cfg.Args
	if len(args) == 0 {
		built, err := BuildArgs(s.cfg.Settings)
		if err != nil {
			s.failSpawnLocked()
			s.mu.Unlock()
			return s.spawnFailed(ctx, err)
		}
		args = built
	}

	cmd := exec.Command(s.cfg.BinPath, args...)
	procgroup.Set(cmd)
	cmd.Stdout = s.stdoutRelay
	cmd.Stderr = s.stderrRelay
	cmd.WaitDelay = s.cfg.KillTimeout

	stdin, err := cmd.StdinPipe()
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		s.failSpawnLocked()
		s.mu.Unlock()
		return s.spawnFailed(ctx, err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.startedAt = time.Now()
	s.accepting.Store(true)
	s.setStateLocked(StateRunning)
	s.mu.Unlock()

	metrics.IncEncoderStart("ok")
	s.logger.Info().
		Str(rlog.FieldEvent, "encoder.started").
		Int(rlog.FieldPID, cmd.Process.Pid).
		Str(rlog.FieldDestination, RedactURL(s.cfg.Settings.DestinationURL)).
		Strs("args", RedactArgs(args, s.cfg.Settings.DestinationURL)).
		Msg("encoder process started")
	if len(s.cfg.Args) == 0 {
		s.logger.Debug().
			Str(rlog.FieldEvent, "encoder.settings").
			Interface("settings", Redact(s.cfg.Settings)).
			Msg("encoder settings")
	}

	go s.writeLoop()
	go s.monitor()
	return nil
}

func (s *Supervisor) failSpawnLocked() {
	now := time.Now()
	s.exit = ExitStatus{Code: -1, Reason: ReasonSpawnFailed, StartedAt: now, EndedAt: now}
	s.hasExit = true
	s.setStateLocked(StateTerminated)
}

func (s *Supervisor) spawnFailed(ctx context.Context, err error) error {
	s.mu.Lock()
	s.exit.Err = err
	s.mu.Unlock()

	s.closeInput()
	close(s.writerDone)
	close(s.exited)
	close(s.done)

	metrics.IncEncoderStart("failed")
	metrics.IncEncoderExit(ReasonSpawnFailed)
	s.reporter.Report(ctx, telemetry.Event{
		Kind:    telemetry.KindEncoderCrash,
		Err:     err,
		Message: "encoder failed to start",
		Fields: map[string]any{
			rlog.FieldReason: ReasonSpawnFailed,
			"bin":           s.cfg.BinPath,
		},
	})
	return fmt.Errorf("start encoder: %w", err)
}

// Write queues p for the encoder stdin and takes ownership of it.
// Once the input is closed it returns ErrInputClosed and writes nothing.
func (s *Supervisor) Write(p []byte) error {
	if !s.accepting.Load() {
		metrics.IncEncoderDrop("input_closed")
		s.closedLog.Do(func() {
			s.logger.Warn().
				Str(rlog.FieldEvent, "encoder.write_after_close").
				Int(rlog.FieldBytes, len(p)).
				Msg("encoder input closed, skipping write")
		})
		return ErrInputClosed
	}
	if len(p) == 0 {
		return nil
	}

	if s.cfg.Overflow == OverflowBlock {
		select {
		case s.queue <- p:
		case <-s.inputClosed:
			return ErrInputClosed
		}
	} else {
		s.enqueueDropOldest(p)
	}
	metrics.EncoderQueueDepth.Set(float64(len(s.queue)))
	return nil
}

func (s *Supervisor) enqueueDropOldest(p []byte) {
	for {
		select {
		case s.queue <- p:
			return
		default:
		}
		select {
		case old := <-s.queue:
			s.dropped.Add(1)
			metrics.IncEncoderDrop("overflow")
			s.dropLog.Do(func() {
				s.logger.Warn().
					Str(rlog.FieldEvent, "encoder.queue_overflow").
					Int(rlog.FieldBytes, len(old)).
					Int("queue_size", s.cfg.QueueSize).
					Msg("encoder queue full, dropped oldest batch")
			})
		default:
		}
	}
}

func (s *Supervisor) writeLoop() {
	defer close(s.writerDone)
	defer s.closeStdin()

	for {
		select {
		case batch := <-s.queue:
			s.writeBatch(batch)
		case <-s.inputClosed:
			for {
				select {
				case batch := <-s.queue:
					s.writeBatch(batch)
				default:
					metrics.EncoderQueueDepth.Set(0)
					return
				}
			}
		}
	}
}

func (s *Supervisor) writeBatch(batch []byte) {
	metrics.EncoderQueueDepth.Set(float64(len(s.queue)))
	if s.stdinBroken.Load() {
		s.dropped.Add(1)
		metrics.IncEncoderDrop("input_closed")
		return
	}

	n, err := s.stdin.Write(batch)
	metrics.AddEncoderBytes(n)
	if err == nil {
		return
	}

	metrics.IncEncoderWriteError()
	broken := isBrokenPipe(err)
	s.reporter.Report(context.Background(), telemetry.Event{
		Kind:    telemetry.KindEncoderWrite,
		Err:     err,
		Message: "encoder stdin write failed",
		Fields: map[string]any{
			rlog.FieldBytes: len(batch),
			"written":      n,
			"broken_pipe":  broken,
		},
	})
	if broken {
		s.stdinBroken.Store(true)
		s.closeInput()
	}
}

func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}

func (s *Supervisor) monitor() {
	waitErr := s.cmd.Wait()
	s.stdoutRelay.Flush()
	s.stderrRelay.Flush()
	close(s.exited)
	s.closeInput()

	ps := s.cmd.ProcessState
	code := -1
	if ps != nil {
		code = ps.ExitCode()
	}

	s.mu.Lock()
	prev := s.state
	st := ExitStatus{
		Code:      code,
		Reason:    classifyExit(prev, ps, code),
		Err:       waitErr,
		StartedAt: s.startedAt,
		EndedAt:   time.Now(),
		Stderr:    s.stderr.LastN(crashTailLines),
	}
	s.exit = st
	s.hasExit = true
	s.setStateLocked(StateTerminated)
	s.mu.Unlock()

	metrics.IncEncoderExit(st.Reason)
	s.logger.Info().
		Str(rlog.FieldEvent, "encoder.exited").
		Int(rlog.FieldPID, s.cmd.Process.Pid).
		Int(rlog.FieldExitCode, st.Code).
		Str(rlog.FieldReason, st.Reason).
		Dur("uptime", st.EndedAt.Sub(st.StartedAt)).
		Msg("encoder process exited")

	if prev == StateRunning {
		s.reporter.Report(context.Background(), telemetry.Event{
			Kind:    telemetry.KindEncoderCrash,
			Err:     waitErr,
			Message: "encoder exited unexpectedly",
			Fields: map[string]any{
				rlog.FieldExitCode: st.Code,
				rlog.FieldReason:   st.Reason,
				"stderr_tail":     st.Stderr,
			},
		})
	}
	close(s.done)
}

func classifyExit(prev State, ps *os.ProcessState, code int) string {
	if prev == StateDraining {
		if ps != nil {
			if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() && ws.Signal() == syscall.SIGKILL {
				return ReasonKilled
			}
		}
		return ReasonShutdown
	}
	if code == 0 {
		return ReasonClean
	}
	return ReasonError
}

// Shutdown stops writes, drains queued batches, closes stdin and then
// terminates the process group: SIGTERM, GracePeriod, SIGKILL.
// Only the first call acts; later calls return nil.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateDraining, StateTerminated:
		s.mu.Unlock()
		return nil
	case StateStarting:
		now := time.Now()
		s.exit = ExitStatus{Code: -1, Reason: ReasonNotStarted, StartedAt: now, EndedAt: now}
		s.hasExit = true
		s.setStateLocked(StateTerminated)
		s.mu.Unlock()
		s.closeInput()
		close(s.writerDone)
		close(s.exited)
		close(s.done)
		return nil
	}
	s.setStateLocked(StateDraining)
	s.terminations++
	cmd := s.cmd
	s.mu.Unlock()

	grace := boundedGrace(ctx, s.cfg.GracePeriod, s.cfg.KillTimeout)
	s.closeInput()
	pending := len(s.queue)

	if !waitFor(ctx, grace, s.writerDone, s.exited) {
		s.logger.Warn().
			Str(rlog.FieldEvent, "encoder.drain_timeout").
			Int(rlog.FieldPending, len(s.queue)).
			Dur("grace", grace).
			Msg("encoder input did not drain in time")
	}
	s.closeStdin()
	waitFor(ctx, min(s.cfg.EOFWait, grace), s.exited)

	forced, err := procgroup.Terminate(cmd, s.exited, grace, s.cfg.KillTimeout)
	if err != nil {
		s.reporter.Report(ctx, telemetry.Event{
			Kind:    telemetry.KindShutdown,
			Err:     err,
			Message: "encoder did not exit after SIGKILL",
			Fields:  map[string]any{rlog.FieldPID: cmd.Process.Pid},
		})
		return fmt.Errorf("terminate encoder: %w", err)
	}

	select {
	case <-s.done:
	case <-ctx.Done():
	}
	exit, _ := s.Exit()
	s.logger.Info().
		Str(rlog.FieldEvent, "encoder.stopped").
		Int(rlog.FieldPending, pending).
		Bool("forced", forced).
		Int(rlog.FieldExitCode, exit.Code).
		Str(rlog.FieldReason, exit.Reason).
		Msg("encoder stopped")
	return nil
}

// boundedGrace shrinks grace so that drain, grace and kill timeout fit
// inside the ctx deadline when one is set.
func boundedGrace(ctx context.Context, grace, killTimeout time.Duration) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		return grace
	}
	budget := (time.Until(dl) - killTimeout) / 2
	if budget < 0 {
		budget = 0
	}
	return min(grace, budget)
}

// waitFor waits until any channel closes, ctx ends or d elapses.
// It reports whether a channel closed.
func waitFor(ctx context.Context, d time.Duration, chans ...<-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	var a, b <-chan struct{}
	if len(chans) > 0 {
		a = chans[0]
	}
	if len(chans) > 1 {
		b = chans[1]
	}
	select {
	case <-a:
		return true
	case <-b:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	return false
}

// CloseInput stops accepting writes without stopping the process. Writers
// blocked on a full queue return ErrInputClosed; queued batches are still
// written until Shutdown closes stdin.
func (s *Supervisor) CloseInput() {
	s.closeInput()
}

func (s *Supervisor) closeInput() {
	s.inputOnce.Do(func() {
		s.accepting.Store(false)
		close(s.inputClosed)
	})
}

func (s *Supervisor) closeStdin() {
	s.stdinOnce.Do(func() {
		s.mu.Lock()
		stdin := s.stdin
		s.mu.Unlock()
		if stdin != nil {
			_ = stdin.Close()
		}
	})
}

func (s *Supervisor) setStateLocked(next State) {
	if s.state == next || !canTransition(s.state, next) {
		return
	}
	prev := s.state
	s.state = next
	metrics.SetEncoderState(next.String(), stateNames)
	s.logger.Debug().
		Str(rlog.FieldEvent, "encoder.state").
		Str(rlog.FieldOldState, prev.String()).
		Str(rlog.FieldNewState, next.String()).
		Msg("encoder state changed")
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Exit returns the recorded exit status once the process has ended.
func (s *Supervisor) Exit() (ExitStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exit, s.hasExit
}

// Done is closed once the supervisor reaches Terminated.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// TerminationAttempts counts signal sequences issued against the process.
func (s *Supervisor) TerminationAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminations
}

// Dropped returns how many batches never reached stdin.
func (s *Supervisor) Dropped() int64 {
	return s.dropped.Load()
}

// QueueDepth returns the number of batches waiting for the writer.
func (s *Supervisor) QueueDepth() int {
	return len(s.queue)
}

// Stderr returns up to n of the latest encoder stderr lines.
func (s *Supervisor) Stderr(n int) []string {
	return s.stderr.LastN(n)
}

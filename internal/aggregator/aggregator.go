// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package aggregator batches inbound media chunks before they reach the encoder.
//
// Chunks are kept in arrival order. Once more than Threshold chunks are
// pending, the batch is concatenated and handed to the Writer in one call.
// The check, the swap and the hand-off happen under one mutex, so bytes
// reach the Writer exactly once and in append order.
package aggregator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	rlog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/metrics"
)

// DefaultThreshold is used when New is given a threshold below 1.
const DefaultThreshold = 5

var (
	// ErrEmptyChunk is returned for a zero-length chunk. The buffer is unchanged.
	ErrEmptyChunk = errors.New("empty chunk")
	// ErrClosed is returned by Append after Close.
	ErrClosed = errors.New("aggregator closed")
)

// Writer receives concatenated batches. It must not retain the caller's
// lock for long; the encoder Supervisor only enqueues.
type Writer interface {
	Write(p []byte) error
}

// Stats is a snapshot of aggregator counters.
type Stats struct {
	Appended       int64
	Flushes        int64
	BytesForwarded int64
	Dropped        int64
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// Aggregator is safe for concurrent use.
type Aggregator struct {
	threshold int
	w         Writer
	logger    zerolog.Logger

	mu      sync.Mutex
	pending [][]byte
	closed  bool
	stats   Stats
}

// New creates an Aggregator forwarding to w.
func New(threshold int, w Writer, opts ...Option) *Aggregator {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	a := &Aggregator{
		threshold: threshold,
		w:         w,
		logger:    rlog.WithComponent("aggregator"),
		pending:   make([][]byte, 0, threshold+1),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Threshold returns the effective flush threshold.
func (a *Aggregator) Threshold() int {
	return a.threshold
}

// Append adds chunk to the pending batch and forwards the batch once the
// pending count exceeds the threshold. The chunk is retained; callers must
// not modify it afterwards.
func (a *Aggregator) Append(chunk []byte) error {
	if len(chunk) == 0 {
		return ErrEmptyChunk
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	a.pending = append(a.pending, chunk)
	a.stats.Appended++
	metrics.AddChunk(len(chunk))

	if len(a.pending) <= a.threshold {
		metrics.AggregatorPending.Set(float64(len(a.pending)))
		return nil
	}
	return a.flushLocked("threshold")
}

// Flush forwards whatever is pending. It is a no-op when nothing is.
func (a *Aggregator) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	return a.flushLocked("manual")
}

// Close stops accepting appends. With flush set the pending chunks are
// forwarded, otherwise they are discarded and counted in dropped.
// Calling Close again returns zero values.
func (a *Aggregator) Close(flush bool) (dropped int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return 0, nil
	}
	a.closed = true

	if flush {
		return 0, a.flushLocked("shutdown")
	}

	dropped = len(a.pending)
	var bytes int
	for _, c := range a.pending {
		bytes += len(c)
	}
	a.pending = nil
	a.stats.Dropped += int64(dropped)
	metrics.AddDiscarded(dropped)
	metrics.AggregatorPending.Set(0)

	if dropped > 0 {
		a.logger.Warn().
			Str(rlog.FieldEvent, "aggregator.discarded").
			Int(rlog.FieldChunks, dropped).
			Int(rlog.FieldBytes, bytes).
			Msg("discarded pending chunks at close")
	}
	return dropped, nil
}

// flushLocked swaps the pending slice for an empty one and forwards the
// concatenation. The buffer is empty even if the Writer fails.
func (a *Aggregator) flushLocked(trigger string) error {
	if len(a.pending) == 0 {
		return nil
	}

	batch := a.pending
	a.pending = make([][]byte, 0, a.threshold+1)
	metrics.AggregatorPending.Set(0)

	size := 0
	for _, c := range batch {
		size += len(c)
	}
	buf := make([]byte, 0, size)
	for _, c := range batch {
		buf = append(buf, c...)
	}

	a.stats.Flushes++
	metrics.ObserveFlush(trigger, size)
	a.logger.Debug().
		Str(rlog.FieldEvent, "aggregator.flush").
		Str("trigger", trigger).
		Int(rlog.FieldChunks, len(batch)).
		Int(rlog.FieldBytes, size).
		Msg("forwarding batch")

	if err := a.w.Write(buf); err != nil {
		return fmt.Errorf("forward %d chunks: %w", len(batch), err)
	}
	a.stats.BytesForwarded += int64(size)
	return nil
}

// Pending returns the number of chunks waiting for the next flush.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Stats returns a snapshot of the counters.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

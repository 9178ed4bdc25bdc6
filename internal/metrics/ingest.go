// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsActive tracks currently connected capture clients.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_sessions_active",
		Help: "Number of open websocket capture sessions",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_sessions_total",
		Help: "Total websocket sessions by outcome",
	}, []string{"outcome"})

	chunksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_chunks_received_total",
		Help: "Total binarystream chunks accepted by the aggregator",
	})

	chunkBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_chunk_bytes_received_total",
		Help: "Total payload bytes accepted by the aggregator",
	})

	eventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_rejected_total",
		Help: "Total inbound events that could not be turned into a chunk",
	}, []string{"reason"})

	// AggregatorPending mirrors the aggregator's pending chunk count.
	AggregatorPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_aggregator_pending_chunks",
		Help: "Chunks waiting for the next flush",
	})

	flushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_aggregator_flushes_total",
		Help: "Total aggregator flushes by trigger",
	}, []string{"trigger"})

	flushBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_aggregator_flush_bytes",
		Help:    "Size of flushed batches in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB to ~256MiB
	})

	chunksDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_aggregator_discarded_chunks_total",
		Help: "Pending chunks discarded at shutdown without being forwarded",
	})
)

// IncSession records a session transition ("opened", "closed", "rejected").
func IncSession(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	sessionsTotal.WithLabelValues(outcome).Inc()
}

// AddChunk records one accepted chunk of n bytes.
func AddChunk(n int) {
	chunksReceived.Inc()
	chunkBytesReceived.Add(float64(n))
}

// IncEventRejected records an inbound event that did not produce a chunk.
func IncEventRejected(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	eventsRejected.WithLabelValues(reason).Inc()
}

// ObserveFlush records one flush of size bytes.
func ObserveFlush(trigger string, size int) {
	flushesTotal.WithLabelValues(trigger).Inc()
	flushBytes.Observe(float64(size))
}

// AddDiscarded records pending chunks dropped at close.
func AddDiscarded(n int) {
	if n > 0 {
		chunksDiscarded.Add(float64(n))
	}
}

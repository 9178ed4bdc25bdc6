// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EncoderState exposes the supervisor state as a one-hot gauge.
	EncoderState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_encoder_state",
		Help: "Current encoder supervisor state (1 = active state)",
	}, []string{"state"})

	encoderBytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_encoder_bytes_written_total",
		Help: "Total bytes written to the encoder stdin",
	})

	encoderWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_encoder_write_errors_total",
		Help: "Total failed writes to the encoder stdin",
	})

	// EncoderQueueDepth tracks batches waiting for the stdin writer.
	EncoderQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_encoder_queue_depth",
		Help: "Batches queued for the encoder stdin writer",
	})

	encoderDroppedBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_encoder_dropped_batches_total",
		Help: "Total batches dropped before reaching the encoder",
	}, []string{"reason"})

	encoderExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_encoder_exit_total",
		Help: "Total encoder process exits by reason",
	}, []string{"reason"})

	encoderStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_encoder_start_total",
		Help: "Total encoder process starts by result",
	}, []string{"result"})
)

// SetEncoderState marks state as the active one among all known states.
func SetEncoderState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		EncoderState.WithLabelValues(s).Set(v)
	}
}

// AddEncoderBytes records bytes successfully written to stdin.
func AddEncoderBytes(n int) { encoderBytesWritten.Add(float64(n)) }

// IncEncoderWriteError records a failed stdin write.
func IncEncoderWriteError() { encoderWriteErrors.Inc() }

// IncEncoderDrop records a batch that never reached stdin.
func IncEncoderDrop(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	encoderDroppedBatches.WithLabelValues(reason).Inc()
}

// IncEncoderExit records a process exit.
func IncEncoderExit(reason string) { encoderExits.WithLabelValues(reason).Inc() }

// IncEncoderStart records a spawn attempt.
func IncEncoderStart(result string) { encoderStarts.WithLabelValues(result).Inc() }

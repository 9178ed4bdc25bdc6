// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var relayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "relay_errors_total",
	Help: "Total reported errors by kind",
}, []string{"kind"})

// IncError records one reported error of the given kind.
func IncError(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	relayErrors.WithLabelValues(kind).Inc()
}

// SPDX-License-Identifier: MIT

package health

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamrelay/internal/encoder"
	"github.com/ManuGH/streamrelay/internal/log"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

type fakeEncoder struct {
	state encoder.State
	exit  *encoder.ExitStatus
}

func (f fakeEncoder) State() encoder.State { return f.state }

func (f fakeEncoder) Exit() (encoder.ExitStatus, bool) {
	if f.exit == nil {
		return encoder.ExitStatus{}, false
	}
	return *f.exit, true
}

type fakeAcceptor bool

func (f fakeAcceptor) Accepting() bool { return bool(f) }

func TestManager_Health_NoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)
}

func TestManager_Health_WithCheckers(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestManager_Ready(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})
	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusDegraded, resp.Status)

	m.RegisterChecker(&mockChecker{name: "down", status: StatusUnhealthy})
	resp = m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestServeReady_StatusCodes(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(NewListenerChecker(fakeAcceptor(false)))

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Ready)
	assert.Equal(t, StatusUnhealthy, body.Checks["listener"].Status)

	rec = httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEncoderChecker(t *testing.T) {
	tests := []struct {
		name string
		enc  fakeEncoder
		want Status
	}{
		{"running", fakeEncoder{state: encoder.StateRunning}, StatusHealthy},
		{"starting", fakeEncoder{state: encoder.StateStarting}, StatusDegraded},
		{"draining", fakeEncoder{state: encoder.StateDraining}, StatusDegraded},
		{"crashed", fakeEncoder{state: encoder.StateTerminated, exit: &encoder.ExitStatus{Reason: encoder.ReasonError}}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewEncoderChecker(tt.enc).Check(context.Background())
			assert.Equal(t, tt.want, res.Status)
		})
	}

	res := NewEncoderChecker(fakeEncoder{state: encoder.StateTerminated, exit: &encoder.ExitStatus{Reason: encoder.ReasonError}}).Check(context.Background())
	assert.Contains(t, res.Error, "error")
}

func TestServeReady_LogsWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	log.Configure(log.Config{Level: "debug", Output: &buf})
	t.Cleanup(func() { log.Configure(log.Config{}) })

	m := NewManager("v1.0.0")
	m.RegisterChecker(NewListenerChecker(fakeAcceptor(false)))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	req = req.WithContext(log.ContextWithRequestID(req.Context(), "req-42"))
	rec := httptest.NewRecorder()
	m.ServeReady(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "readiness.failed", entry[log.FieldEvent])
	assert.Equal(t, "req-42", entry[log.FieldRequestID])
	assert.Equal(t, "health", entry[log.FieldComponent])
}

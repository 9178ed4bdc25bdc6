// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSink_LogsAndPublishesOperatorEvents(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	sink := NewSink(zerolog.New(&buf), 1)

	sink.Report(context.Background(), Event{
		Kind:    KindEncoderCrash,
		Err:     errors.New("exit status 1"),
		Message: "encoder exited unexpectedly",
		Fields:  map[string]any{"exit_code": 1},
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"], "the operator consumer owns the error line")
	assert.Equal(t, "error.encoder_crash", line["event"])
	assert.EqualValues(t, 1, line["exit_code"])

	select {
	case ev := <-sink.Operator():
		assert.Equal(t, KindEncoderCrash, ev.Kind)
	default:
		t.Fatal("expected operator event")
	}
}

func TestSink_NonOperatorKindsStayLocal(t *testing.T) {
	sink := NewSink(zerolog.Nop(), 1)
	sink.Report(context.Background(), Event{Kind: KindChunk, Err: errors.New("empty")})
	sink.Report(context.Background(), Event{Kind: KindTransport})
	sink.Report(context.Background(), Event{Kind: KindEncoderWrite})

	select {
	case ev := <-sink.Operator():
		t.Fatalf("unexpected operator event %v", ev.Kind)
	default:
	}
}

func TestSink_FullOperatorChannelDoesNotBlock(t *testing.T) {
	sink := NewSink(zerolog.Nop(), 1)
	sink.Report(context.Background(), Event{Kind: KindShutdown})
	sink.Report(context.Background(), Event{Kind: KindShutdown})

	assert.Equal(t, int64(1), sink.DroppedOperatorEvents())
}

func TestSink_DroppedOperatorEventLoggedAsError(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(zerolog.New(&buf), 1)
	sink.Report(context.Background(), Event{Kind: KindShutdown, Message: "first"})
	buf.Reset()
	sink.Report(context.Background(), Event{Kind: KindShutdown, Message: "second"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "second", line["message"])
}

func TestSink_NonOperatorKindsLogAtWarn(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(zerolog.New(&buf), 1)
	sink.Report(context.Background(), Event{Kind: KindChunk, Err: errors.New("empty")})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
}

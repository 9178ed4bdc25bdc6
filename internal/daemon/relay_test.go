// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package daemon

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/ManuGH/streamrelay/internal/aggregator"
	"github.com/ManuGH/streamrelay/internal/encoder"
	"github.com/ManuGH/streamrelay/internal/health"
	"github.com/ManuGH/streamrelay/internal/listener"
)

// runRelay wires the real pipeline with `cat` standing in for ffmpeg,
// streams chunks through a websocket and shuts down.
func runRelay(t *testing.T, flush bool, chunks ...string) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "stream.bin")

	sup := encoder.NewSupervisor(encoder.Config{
		BinPath:     "sh",
		Args:        []string{"-c", `cat > "$0"`, out},
		GracePeriod: time.Second,
		KillTimeout: 2 * time.Second,
		EOFWait:     2 * time.Second,
	}, nil)
	require.NoError(t, sup.Start(context.Background()))

	agg := aggregator.New(5, sup)
	ln := listener.New(listener.Config{}, agg, nil)
	hm := health.NewManager("test")
	hm.RegisterChecker(health.NewEncoderChecker(sup))

	deps := Deps{
		Logger:          testLogger(),
		APIHandler:      listener.NewRouter(listener.RouterConfig{}, ln, hm),
		Listener:        ln,
		Aggregator:      agg,
		Encoder:         sup,
		FlushOnShutdown: flush,
	}
	mgr, err := NewManager(testServerConfig("127.0.0.1:0"), deps)
	require.NoError(t, err)
	cancel, errCh := startManager(t, mgr)

	ws, err := websocket.Dial("ws://"+mgr.Addr()+"/ws", "", "http://localhost/")
	require.NoError(t, err)
	defer ws.Close()
	for _, c := range chunks {
		require.NoError(t, websocket.Message.Send(ws, []byte(c)))
	}
	require.Eventually(t, func() bool {
		return agg.Stats().Appended == int64(len(chunks))
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)
	<-sup.Done()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	return string(data)
}

func TestRelay_PartialBatchDiscardedByDefault(t *testing.T) {
	got := runRelay(t, false, "a", "b", "c", "d", "e", "f", "g", "h")
	// Six chunks exceed the threshold and are forwarded; the trailing two are lost.
	assert.Equal(t, "abcdef", got)
}

func TestRelay_PartialBatchFlushedWhenEnabled(t *testing.T) {
	got := runRelay(t, true, "a", "b", "c", "d", "e", "f", "g", "h")
	assert.Equal(t, "abcdefgh", got)
}

func TestRelay_ShutdownBoundedWhenEncoderStalls(t *testing.T) {
	// The encoder never reads stdin, so with the block policy an append
	// ends up waiting on a full queue while holding the aggregator.
	sup := encoder.NewSupervisor(encoder.Config{
		BinPath:     "sh",
		Args:        []string{"-c", "exec sleep 30"},
		GracePeriod: 200 * time.Millisecond,
		KillTimeout: time.Second,
		EOFWait:     100 * time.Millisecond,
		QueueSize:   1,
		Overflow:    encoder.OverflowBlock,
	}, nil)
	require.NoError(t, sup.Start(context.Background()))

	agg := aggregator.New(1, sup)
	ln := listener.New(listener.Config{}, agg, nil)

	appendErr := make(chan error, 1)
	go func() {
		chunk := make([]byte, 1<<20)
		for {
			if err := agg.Append(chunk); err != nil {
				appendErr <- err
				return
			}
		}
	}()
	require.Eventually(t, func() bool { return sup.QueueDepth() == 1 }, 2*time.Second, 10*time.Millisecond)

	mgr, err := NewManager(testServerConfig("127.0.0.1:0"), Deps{
		Logger:       testLogger(),
		APIHandler:   http.NotFoundHandler(),
		Listener:     ln,
		Aggregator:   agg,
		Encoder:      sup,
		DrainTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	cancel, errCh := startManager(t, mgr)

	start := time.Now()
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(4 * time.Second):
		t.Fatal("shutdown did not complete with a stalled encoder")
	}
	assert.Less(t, time.Since(start), 4*time.Second)

	err = <-appendErr
	assert.True(t, errors.Is(err, encoder.ErrInputClosed) || errors.Is(err, aggregator.ErrClosed), "append error: %v", err)

	<-sup.Done()
	exit, ok := sup.Exit()
	require.True(t, ok)
	assert.False(t, exit.Unexpected())
}

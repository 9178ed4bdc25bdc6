// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import (
	"bytes"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	rlog "github.com/ManuGH/streamrelay/internal/log"
)

// maxLineBytes bounds a single buffered line; longer output is split.
const maxLineBytes = 4096

// lineRelay is the io.Writer given to exec.Cmd for stdout and stderr.
// It splits output into lines, logs each one and keeps the tail in a ring.
// ffmpeg terminates progress lines with '\r', which counts as a line break.
type lineRelay struct {
	mu     sync.Mutex
	stream string
	logger zerolog.Logger
	ring   *LineRing
	buf    []byte
}

func newLineRelay(stream string, logger zerolog.Logger, ring *LineRing) *lineRelay {
	return &lineRelay{stream: stream, logger: logger, ring: ring}
}

func (w *lineRelay) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLineBytes {
		w.emit(w.buf)
		w.buf = w.buf[:0]
	}
	return len(p), nil
}

// Flush emits any trailing partial line.
func (w *lineRelay) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *lineRelay) emit(b []byte) {
	line := strings.TrimSpace(string(b))
	if line == "" {
		return
	}
	if w.ring != nil {
		w.ring.Add(line)
	}
	w.logger.Debug().
		Str(rlog.FieldEvent, "encoder.output").
		Str(rlog.FieldStream, w.stream).
		Msg(line)
}

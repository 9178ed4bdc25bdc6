// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLineRing(t *testing.T) {
	r := NewLineRing(3)
	assert.Nil(t, r.LastN(5))

	r.Add("line1")
	r.Add("line2")
	assert.Equal(t, []string{"line1", "line2"}, r.LastN(10))

	r.Add("line3")
	r.Add("line4")
	assert.Equal(t, []string{"line2", "line3", "line4"}, r.LastN(10))
	assert.Equal(t, []string{"line3", "line4"}, r.LastN(2))
	assert.Nil(t, r.LastN(0))
}

func TestLineRelay_SplitsPartialWrites(t *testing.T) {
	ring := NewLineRing(10)
	w := newLineRelay("stderr", zerolog.Nop(), ring)

	_, _ = w.Write([]byte("Input #0, matroska"))
	_, _ = w.Write([]byte(",webm\nframe=  10 fps=0.0\rframe=  20"))
	assert.Equal(t, []string{"Input #0, matroska,webm", "frame=  10 fps=0.0"}, ring.LastN(10))

	w.Flush()
	assert.Equal(t, "frame=  20", ring.LastN(1)[0])
}

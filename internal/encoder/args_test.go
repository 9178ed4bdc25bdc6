// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultSettings() Settings {
	return Settings{
		InputFormat:         "webm",
		LogVerbosity:        "verbose",
		VideoCodec:          "libx264",
		Preset:              "ultrafast",
		Tuning:              "zerolatency",
		FrameRate:           25,
		GOPSize:             50,
		MinKeyframeInterval: 25,
		QualityFactor:       25,
		PixelFormat:         "yuv420p",
		SceneCutThreshold:   0,
		VideoProfile:        "main",
		VideoLevel:          "3.1",
		AudioCodec:          "aac",
		AudioBitrate:        "128k",
		SampleRate:          32000,
		OutputFormat:        "flv",
		DestinationURL:      "rtmp://live.example.com/app/secret-key",
	}
}

func TestBuildArgs_Defaults(t *testing.T) {
	got, err := BuildArgs(defaultSettings())
	require.NoError(t, err)

	want := []string{
		"-f", "webm", "-loglevel", "verbose", "-i", "-",
		"-c:v", "libx264", "-preset", "ultrafast", "-tune", "zerolatency",
		"-r", "25", "-g", "50", "-keyint_min", "25", "-crf", "25",
		"-pix_fmt", "yuv420p", "-sc_threshold", "0",
		"-profile:v", "main", "-level", "3.1",
		"-c:a", "aac", "-b:a", "128k", "-ar", "32000",
		"-f", "flv", "rtmp://live.example.com/app/secret-key",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildArgs mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildArgs_OmitsUnset(t *testing.T) {
	s := defaultSettings()
	s.Tuning = ""
	s.QualityFactor = 0
	s.AudioBitrate = ""

	got, err := BuildArgs(s)
	require.NoError(t, err)

	joined := strings.Join(got, " ")
	assert.NotContains(t, joined, "-tune")
	assert.NotContains(t, joined, "-crf")
	assert.NotContains(t, joined, "-b:a")
	assert.Contains(t, joined, "-sc_threshold 0")
	assert.Equal(t, s.DestinationURL, got[len(got)-1])
}

func TestBuildArgs_Errors(t *testing.T) {
	s := defaultSettings()
	s.DestinationURL = "  "
	_, err := BuildArgs(s)
	assert.ErrorIs(t, err, ErrNoDestination)

	s = defaultSettings()
	s.InputFormat = ""
	_, err = BuildArgs(s)
	assert.ErrorIs(t, err, ErrFormatRequired)
}

func TestRedact(t *testing.T) {
	s := defaultSettings()
	r := Redact(s)
	assert.NotContains(t, r.DestinationURL, "secret-key")
	assert.Equal(t, "rtmp://live.example.com/app/secret-key", s.DestinationURL, "original must be untouched")

	args, err := BuildArgs(s)
	require.NoError(t, err)
	for _, a := range RedactArgs(args, s.DestinationURL) {
		assert.NotContains(t, a, "secret-key")
	}
}

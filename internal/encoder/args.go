// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import (
	"strconv"
	"strings"

	"github.com/ManuGH/streamrelay/internal/core/urlutil"
)

// Settings is the fixed ffmpeg configuration used for the lifetime of the process.
// String fields left empty and numeric fields left at zero are omitted from
// the command line, except SceneCutThreshold where 0 is meaningful.
type Settings struct {
	InputFormat         string
	LogVerbosity        string
	VideoCodec          string
	Preset              string
	Tuning              string
	FrameRate           int
	GOPSize             int
	MinKeyframeInterval int
	QualityFactor       int
	PixelFormat         string
	SceneCutThreshold   int
	VideoProfile        string
	VideoLevel          string
	AudioCodec          string
	AudioBitrate        string
	SampleRate          int
	OutputFormat        string
	DestinationURL      string
}

// BuildArgs assembles the ffmpeg argv: input options, stdin input, video
// options, audio options, muxer and destination. Order matters to ffmpeg:
// everything before "-i" applies to the input.
func BuildArgs(s Settings) ([]string, error) {
	if strings.TrimSpace(s.DestinationURL) == "" {
		return nil, ErrNoDestination
	}
	if s.InputFormat == "" || s.OutputFormat == "" {
		return nil, ErrFormatRequired
	}

	args := make([]string, 0, 40)
	add := func(flag, value string) {
		if value != "" {
			args = append(args, flag, value)
		}
	}
	addInt := func(flag string, value int) {
		if value > 0 {
			args = append(args, flag, strconv.Itoa(value))
		}
	}

	// Input
	add("-f", s.InputFormat)
	add("-loglevel", s.LogVerbosity)
	args = append(args, "-i", "-")

	// Video
	add("-c:v", s.VideoCodec)
	add("-preset", s.Preset)
	add("-tune", s.Tuning)
	addInt("-r", s.FrameRate)
	addInt("-g", s.GOPSize)
	addInt("-keyint_min", s.MinKeyframeInterval)
	addInt("-crf", s.QualityFactor)
	add("-pix_fmt", s.PixelFormat)
	args = append(args, "-sc_threshold", strconv.Itoa(s.SceneCutThreshold))
	add("-profile:v", s.VideoProfile)
	add("-level", s.VideoLevel)

	// Audio
	add("-c:a", s.AudioCodec)
	add("-b:a", s.AudioBitrate)
	addInt("-ar", s.SampleRate)

	// Output
	add("-f", s.OutputFormat)
	args = append(args, s.DestinationURL)
	return args, nil
}

// RedactURL masks the stream key and credentials of a destination URL.
func RedactURL(raw string) string {
	return urlutil.RedactStreamKey(raw)
}

// Redact returns a copy of s whose destination is safe to log.
func Redact(s Settings) Settings {
	s.DestinationURL = RedactURL(s.DestinationURL)
	return s
}

// RedactArgs returns a copy of args with the destination masked.
func RedactArgs(args []string, destination string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if destination != "" && a == destination {
			a = RedactURL(a)
		}
		out[i] = a
	}
	return out
}

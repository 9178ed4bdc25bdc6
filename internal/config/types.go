// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the fully resolved relay configuration.
type AppConfig struct {
	Version    string `yaml:"-"`
	LogLevel   string `yaml:"logLevel"`
	LogService string `yaml:"logService"`

	Server  ServerConfig  `yaml:"server"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Encoder EncoderConfig `yaml:"encoder"`
	Tracing TracingConfig `yaml:"tracing"`
}

// IngestConfig controls chunk aggregation and the websocket endpoint limits.
type IngestConfig struct {
	// FlushThreshold is the pending chunk count that must be exceeded before a flush.
	FlushThreshold int `yaml:"flushThreshold"`
	// FlushOnShutdown forwards pending chunks instead of discarding them at shutdown.
	FlushOnShutdown bool `yaml:"flushOnShutdown"`
	// MaxChunkBytes caps a single inbound websocket frame.
	MaxChunkBytes int `yaml:"maxChunkBytes"`
	// ConnRateLimit is the number of /ws connection attempts per window per IP. 0 disables.
	ConnRateLimit  int           `yaml:"connRateLimit"`
	ConnRateWindow time.Duration `yaml:"connRateWindow"`
}

// EncoderConfig holds the ffmpeg spawn configuration and supervision timings.
type EncoderConfig struct {
	BinPath string `yaml:"binPath"`
	// DestinationURL embeds the stream key. Never log it unmasked.
	DestinationURL string `yaml:"destinationURL"`

	InputFormat         string `yaml:"inputFormat"`
	LogVerbosity        string `yaml:"logVerbosity"`
	VideoCodec          string `yaml:"videoCodec"`
	Preset              string `yaml:"preset"`
	Tuning              string `yaml:"tuning"`
	FrameRate           int    `yaml:"frameRate"`
	GOPSize             int    `yaml:"gopSize"`
	MinKeyframeInterval int    `yaml:"minKeyframeInterval"`
	QualityFactor       int    `yaml:"qualityFactor"`
	PixelFormat         string `yaml:"pixelFormat"`
	SceneCutThreshold   int    `yaml:"sceneCutThreshold"`
	VideoProfile        string `yaml:"videoProfile"`
	VideoLevel          string `yaml:"videoLevel"`
	AudioCodec          string `yaml:"audioCodec"`
	AudioBitrate        string `yaml:"audioBitrate"`
	SampleRate          int    `yaml:"sampleRate"`
	OutputFormat        string `yaml:"outputFormat"`

	QueueSize       int           `yaml:"queueSize"`
	Overflow        string        `yaml:"overflow"`
	GracePeriod     time.Duration `yaml:"gracePeriod"`
	KillTimeout     time.Duration `yaml:"killTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// Overflow policies for the encoder write queue.
const (
	OverflowDropOldest = "drop-oldest"
	OverflowBlock      = "block"
)

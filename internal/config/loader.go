// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		if err := l.mergeFile(&cfg, l.configPath); err != nil {
			return AppConfig{}, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Defaults returns the built-in configuration. The encoder settings reproduce
// the WebM-in, H.264/AAC FLV-out command the relay was designed around.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel:   "info",
		LogService: "streamrelay",
		Server:     defaultServerConfig(),
		Ingest: IngestConfig{
			FlushThreshold:  5,
			FlushOnShutdown: false,
			MaxChunkBytes:   8 << 20,
			ConnRateLimit:   30,
			ConnRateWindow:  time.Minute,
		},
		Encoder: EncoderConfig{
			BinPath:             "ffmpeg",
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
			QueueSize:           64,
			Overflow:            OverflowDropOldest,
			GracePeriod:         5 * time.Second,
			KillTimeout:         5 * time.Second,
			ShutdownTimeout:     12 * time.Second,
		},
		Tracing: TracingConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}

// mergeFile decodes the YAML file on top of cfg. Unknown keys are rejected.
func (l *Loader) mergeFile(cfg *AppConfig, path string) error {
	// #nosec G304 -- operator supplied config path
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	cfg.Encoder.DestinationURL = expandEnv(cfg.Encoder.DestinationURL)
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.LogLevel = l.envString("RELAY_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("RELAY_LOG_SERVICE", cfg.LogService)

	// Server
	cfg.Server.ListenAddr = l.envString("RELAY_LISTEN", cfg.Server.ListenAddr)
	cfg.Server.MetricsAddr = l.envString("RELAY_METRICS_LISTEN", cfg.Server.MetricsAddr)
	cfg.Server.StaticDir = l.envString("RELAY_STATIC_DIR", cfg.Server.StaticDir)
	cfg.Server.ReadHeaderTimeout = l.envDuration("RELAY_SERVER_READ_HEADER_TIMEOUT", cfg.Server.ReadHeaderTimeout)
	cfg.Server.IdleTimeout = l.envDuration("RELAY_SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.MaxHeaderBytes = l.envInt("RELAY_SERVER_MAX_HEADER_BYTES", cfg.Server.MaxHeaderBytes)
	cfg.Server.ShutdownTimeout = l.envDuration("RELAY_SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	// Ingest
	cfg.Ingest.FlushThreshold = l.envInt("RELAY_FLUSH_THRESHOLD", cfg.Ingest.FlushThreshold)
	cfg.Ingest.FlushOnShutdown = l.envBool("RELAY_FLUSH_ON_SHUTDOWN", cfg.Ingest.FlushOnShutdown)
	cfg.Ingest.MaxChunkBytes = l.envInt("RELAY_MAX_CHUNK_BYTES", cfg.Ingest.MaxChunkBytes)
	cfg.Ingest.ConnRateLimit = l.envInt("RELAY_CONN_RATE_LIMIT", cfg.Ingest.ConnRateLimit)
	cfg.Ingest.ConnRateWindow = l.envDuration("RELAY_CONN_RATE_WINDOW", cfg.Ingest.ConnRateWindow)

	// Encoder
	cfg.Encoder.BinPath = l.envString("RELAY_FFMPEG_BIN", cfg.Encoder.BinPath)
	cfg.Encoder.DestinationURL = l.envString("RELAY_DESTINATION_URL", cfg.Encoder.DestinationURL)
	cfg.Encoder.LogVerbosity = l.envString("RELAY_ENCODER_LOGLEVEL", cfg.Encoder.LogVerbosity)
	cfg.Encoder.QueueSize = l.envInt("RELAY_ENCODER_QUEUE_SIZE", cfg.Encoder.QueueSize)
	cfg.Encoder.Overflow = strings.ToLower(l.envString("RELAY_ENCODER_OVERFLOW", cfg.Encoder.Overflow))
	cfg.Encoder.GracePeriod = l.envDuration("RELAY_ENCODER_GRACE", cfg.Encoder.GracePeriod)
	cfg.Encoder.KillTimeout = l.envDuration("RELAY_ENCODER_KILL_TIMEOUT", cfg.Encoder.KillTimeout)
	cfg.Encoder.ShutdownTimeout = l.envDuration("RELAY_ENCODER_SHUTDOWN_TIMEOUT", cfg.Encoder.ShutdownTimeout)

	// Tracing
	cfg.Tracing.Enabled = l.envBool("RELAY_TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = l.envString("RELAY_TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.Endpoint = l.envString("RELAY_TRACING_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.SamplingRate = l.envFloat("RELAY_TRACING_SAMPLING_RATE", cfg.Tracing.SamplingRate)
	cfg.Tracing.Environment = l.envString("RELAY_TRACING_ENVIRONMENT", cfg.Tracing.Environment)
}

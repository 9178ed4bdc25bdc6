// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrelay/internal/aggregator"
	"github.com/ManuGH/streamrelay/internal/config"
	"github.com/ManuGH/streamrelay/internal/daemon"
	"github.com/ManuGH/streamrelay/internal/encoder"
	"github.com/ManuGH/streamrelay/internal/health"
	"github.com/ManuGH/streamrelay/internal/listener"
	rlog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/telemetry"
)

type relay struct {
	app *daemon.App
}

func encoderConfig(c config.EncoderConfig) encoder.Config {
	return encoder.Config{
		BinPath: c.BinPath,
		Settings: encoder.Settings{
			InputFormat:         c.InputFormat,
			LogVerbosity:        c.LogVerbosity,
			VideoCodec:          c.VideoCodec,
			Preset:              c.Preset,
			Tuning:              c.Tuning,
			FrameRate:           c.FrameRate,
			GOPSize:             c.GOPSize,
			MinKeyframeInterval: c.MinKeyframeInterval,
			QualityFactor:       c.QualityFactor,
			PixelFormat:         c.PixelFormat,
			SceneCutThreshold:   c.SceneCutThreshold,
			VideoProfile:        c.VideoProfile,
			VideoLevel:          c.VideoLevel,
			AudioCodec:          c.AudioCodec,
			AudioBitrate:        c.AudioBitrate,
			SampleRate:          c.SampleRate,
			OutputFormat:        c.OutputFormat,
			DestinationURL:      c.DestinationURL,
		},
		GracePeriod: c.GracePeriod,
		KillTimeout: c.KillTimeout,
		QueueSize:   c.QueueSize,
		Overflow:    encoder.OverflowPolicy(c.Overflow),
	}
}

func telemetryConfig(cfg config.AppConfig) telemetry.Config {
	return telemetry.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Tracing.Environment,
		ExporterType:   cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
	}
}

// buildRelay wires the pipeline and starts the encoder. Anything started
// before a later step fails is stopped again.
func buildRelay(ctx context.Context, cfg config.AppConfig, configPath string, logger zerolog.Logger) (*relay, error) {
	provider, err := telemetry.NewProvider(ctx, telemetryConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	sink := telemetry.NewDefaultSink()
	sup := encoder.NewSupervisor(encoderConfig(cfg.Encoder), sink)
	if err := sup.Start(ctx); err != nil {
		_ = provider.Shutdown(context.WithoutCancel(ctx))
		return nil, err
	}

	agg := aggregator.New(cfg.Ingest.FlushThreshold, sup)
	ln := listener.New(listener.Config{MaxChunkBytes: cfg.Ingest.MaxChunkBytes}, agg, sink)

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewEncoderChecker(sup))
	hm.RegisterChecker(health.NewListenerChecker(ln))

	router := listener.NewRouter(listener.RouterConfig{
		StaticDir:      cfg.Server.StaticDir,
		ConnRateLimit:  cfg.Ingest.ConnRateLimit,
		ConnRateWindow: cfg.Ingest.ConnRateWindow,
		MountMetrics:   cfg.Server.MetricsAddr == "",
		Tracing:        cfg.Tracing.Enabled,
	}, ln, hm)

	var metricsHandler http.Handler
	if cfg.Server.MetricsAddr != "" {
		metricsHandler = listener.NewMetricsHandler()
	}

	mgr, err := daemon.NewManager(cfg.Server, daemon.Deps{
		Logger:                 logger,
		APIHandler:             router,
		MetricsHandler:         metricsHandler,
		MetricsAddr:            cfg.Server.MetricsAddr,
		Listener:               ln,
		Aggregator:             agg,
		Encoder:                sup,
		Reporter:               sink,
		FlushOnShutdown:        cfg.Ingest.FlushOnShutdown,
		DrainTimeout:           cfg.Encoder.GracePeriod,
		EncoderShutdownTimeout: cfg.Encoder.ShutdownTimeout,
	})
	if err != nil {
		_ = sup.Shutdown(context.WithoutCancel(ctx))
		_ = provider.Shutdown(context.WithoutCancel(ctx))
		return nil, err
	}
	mgr.RegisterShutdownHook("telemetry", provider.Shutdown)

	var watcher daemon.Runner
	if configPath != "" {
		watcher = config.NewWatcher(configPath, cfg.Version, logger, func(next config.AppConfig) {
			if rlog.SetLevel(next.LogLevel) {
				logger.Info().
					Str(rlog.FieldEvent, "config.log_level_changed").
					Str("level", next.LogLevel).
					Msg("log level updated")
			}
		})
	}

	return &relay{app: daemon.NewApp(logger, mgr, watcher, sup, sink.Operator())}, nil
}

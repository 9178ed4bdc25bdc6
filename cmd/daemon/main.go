// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/streamrelay/internal/config"
	rlog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(runHealthcheck(os.Args[2:], os.Stdout, os.Stderr))
	}
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run returns the process exit code: 0 after a graceful shutdown,
// 1 when startup fails, 2 on bad flags.
func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("streamrelay", flag.ContinueOnError)
	showVersion := fs.Bool("version", false, "print version and exit")
	configPath := fs.String("config", "", "path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	// Safe defaults until config is loaded.
	rlog.Configure(rlog.Config{
		Level:   "info",
		Service: "streamrelay",
		Version: version.Version,
	})
	logger := rlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := strings.TrimSpace(*configPath)
	cfg, err := config.NewLoader(path, version.Version).Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str(rlog.FieldEvent, "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
		return 1
	}

	rlog.Configure(rlog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	logger = rlog.WithComponent("daemon")

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str(rlog.FieldEvent, "config.loaded").
		Str("source", source).
		Str("path", path).
		Str(rlog.FieldDestination, config.MaskURL(cfg.Encoder.DestinationURL)).
		Int("flush_threshold", cfg.Ingest.FlushThreshold).
		Bool("flush_on_shutdown", cfg.Ingest.FlushOnShutdown).
		Msg("configuration loaded")
	logger.Debug().
		Str(rlog.FieldEvent, "config.effective").
		Interface("config", config.MaskSecrets(cfg)).
		Msg("effective configuration")

	rl, err := buildRelay(ctx, cfg, path, logger)
	if err != nil {
		logger.Error().Err(err).Str(rlog.FieldEvent, "startup.failed").Msg("relay failed to start")
		return 1
	}

	err = rl.app.Run(ctx)
	if err == nil {
		logger.Info().Str(rlog.FieldEvent, "daemon.exit").Msg("relay exited")
		return 0
	}
	if ctx.Err() != nil {
		// Signal-driven shutdown that hit errors; they are already logged and reported.
		logger.Warn().Err(err).Str(rlog.FieldEvent, "daemon.exit").Msg("relay exited after shutdown errors")
		return 0
	}
	logger.Error().Err(err).Str(rlog.FieldEvent, "daemon.failed").Msg("relay failed")
	return 1
}

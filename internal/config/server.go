// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g., ":3000")
	ListenAddr string `yaml:"listenAddr"`

	// MetricsAddr serves /metrics separately when set; otherwise /metrics is on ListenAddr.
	MetricsAddr string `yaml:"metricsAddr"`

	// StaticDir is served at "/" when set.
	StaticDir string `yaml:"staticDir"`

	// ReadHeaderTimeout bounds reading request headers. A full ReadTimeout would
	// leave a deadline on hijacked websocket connections.
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration `yaml:"idleTimeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will read parsing the request header's keys and values
	MaxHeaderBytes int `yaml:"maxHeaderBytes"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

const (
	// Default server timeouts. There is no write timeout: websocket sessions are long lived.
	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultMaxHeaderBytes    = 1 << 20 // 1 MB
	defaultShutdownTimeout   = 15 * time.Second
	defaultListenAddr        = ":3000"
)

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:        defaultListenAddr,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
		MaxHeaderBytes:    defaultMaxHeaderBytes,
		ShutdownTimeout:   defaultShutdownTimeout,
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"
)

// probePaths maps healthcheck modes to relay endpoints.
var probePaths = map[string]string{
	"live":  "/healthz",
	"ready": "/readyz",
}

// runHealthcheck probes a running relay and is used as the container
// HEALTHCHECK. It exits 0 only on HTTP 200.
func runHealthcheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	mode := fs.String("mode", "ready", "probe to run: ready or live")
	addr := fs.String("addr", "http://localhost:3000", "relay base URL")
	timeout := fs.Duration("timeout", 5*time.Second, "probe timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path, ok := probePaths[*mode]
	if !ok {
		fmt.Fprintf(stderr, "healthcheck: unknown mode %q\n", *mode)
		return 2
	}

	client := http.Client{Timeout: *timeout}
	resp, err := client.Get(*addr + path)
	if err != nil {
		fmt.Fprintf(stderr, "healthcheck %s: %v\n", *mode, err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		Status string `json:"status"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "healthcheck %s: %s (status %q)\n", *mode, resp.Status, body.Status)
		return 1
	}
	fmt.Fprintf(stdout, "healthcheck %s: %s\n", *mode, body.Status)
	return 0
}

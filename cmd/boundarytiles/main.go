// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

// Package main runs the boundarytiles engine as a standalone process:
// configuration is loaded from config.yaml and the environment, the
// supervision tree is started, and the process shuts down gracefully on
// SIGINT or SIGTERM.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/boundarytiles"
	"github.com/tomtom215/boundarytiles/internal/logging"
)

const metricsAddr = ":9090"

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Engine exited with error")
		os.Exit(1)
	}
}

func run() error {
	engine, err := boundarytiles.New(nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		return err
	}

	// Prometheus scrape endpoint. Failure here is not fatal to the pipeline.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logging.Warn().Err(err).Str("addr", metricsAddr).Msg("Metrics endpoint stopped")
		}
	}()

	logging.Info().Str("node_id", engine.NodeID()).Msg("Boundarytiles running, press Ctrl+C to stop")
	<-ctx.Done()

	return engine.Stop()
}

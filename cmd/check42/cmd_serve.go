// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/check42/services/compliance"
	"github.com/AleutianAI/check42/services/compliance/telemetry"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		host  string
		port  int
		roots []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the compliance API over HTTP",
		Long: `Serve the compliance API.

Routes:
  GET  /v1/compliance/health
  GET  /v1/compliance/projects
  POST /v1/compliance/check   {"directory": "...", "project": "..."}
  GET  /metrics               (when telemetry.metric_exporter is prometheus)

Restrict which folders may be checked with --root or server.roots.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			overrides := map[string]any{}
			if cmd.Flags().Changed("host") {
				overrides["server.host"] = host
			}
			if cmd.Flags().Changed("port") {
				overrides["server.port"] = port
			}
			if len(roots) > 0 {
				overrides["server.roots"] = roots
			}
			if err := a.setup(cmd, "", overrides); err != nil {
				return fail(err)
			}
			return runServe(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen address (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (default from config)")
	cmd.Flags().StringSliceVar(&roots, "root", nil, "Allowed submission root; repeatable")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	logger := a.slog()
	cfg := a.cfg

	checker, closeCache, err := compliance.FromConfig(cfg, compliance.SetupOptions{Logger: logger})
	if err != nil {
		return fail(err)
	}
	defer closeCache()

	gin.SetMode(gin.ReleaseMode)
	router := compliance.NewRouter(compliance.NewHandlers(checker, compliance.HandlerOptions{
		RateLimit: cfg.Server.RateLimit,
		Burst:     cfg.Server.Burst,
		Roots:     cfg.Server.Roots,
		Metrics:   telemetry.MetricsHandler(),
	}))

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("compliance API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	a.printer.Success(fmt.Sprintf("Serving the compliance API on http://%s", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fail(fmt.Errorf("listen %s: %w", addr, err))
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fail(fmt.Errorf("shutdown: %w", err))
	}
	logger.Info("compliance API stopped")
	return nil
}

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
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/check42/pkg/logging"
	"github.com/AleutianAI/check42/pkg/ux"
	"github.com/AleutianAI/check42/pkg/version"
	"github.com/AleutianAI/check42/services/compliance"
	"github.com/AleutianAI/check42/services/compliance/config"
	"github.com/AleutianAI/check42/services/compliance/telemetry"
)

const (
	exitCodeOK         = compliance.ExitCompliant
	exitCodeViolations = compliance.ExitViolations
	exitCodeError      = compliance.ExitError
)

// exitError carries a process exit status out of a command. err, when set,
// is printed on stderr.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func fail(err error) error {
	return &exitError{code: exitCodeError, err: err}
}

// app holds state shared by every command for one invocation.
type app struct {
	configFile string
	logLevel   string
	output     string
	logJSON    bool

	cfg      *config.Config
	logger   *logging.Logger
	printer  *ux.Printer
	shutdown telemetry.ShutdownFunc
}

// setup resolves configuration for dir (which may be empty) and starts
// logging and telemetry.
func (a *app) setup(cmd *cobra.Command, dir string, overrides map[string]any) error {
	if overrides == nil {
		overrides = map[string]any{}
	}
	if a.logLevel != "" {
		overrides["log.level"] = strings.ToLower(a.logLevel)
	}
	if a.logJSON {
		overrides["log.json"] = true
	}

	cfg, err := config.Load(config.LoadOptions{File: a.configFile, Dir: dir, Overrides: overrides})
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "check42",
		JSON:    cfg.Log.JSON,
		Writer:  cmd.ErrOrStderr(),
	})
	a.logger.SetDefault()

	shutdown, err := telemetry.Init(cmd.Context(), telemetry.Config{
		ServiceName:    "check42",
		ServiceVersion: version.Version,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		MetricExporter: cfg.Telemetry.MetricExporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
		Writer:         cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

func (a *app) slog() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger.Slog()
}

func (a *app) close() {
	if a.shutdown != nil {
		if err := a.shutdown(context.Background()); err != nil {
			a.slog().Debug("telemetry shutdown failed", slog.String("error", err.Error()))
		}
		a.shutdown = nil
	}
	if a.logger != nil {
		_ = a.logger.Close()
		a.logger = nil
	}
}

type rootCommand struct {
	*cobra.Command
	app *app
}

func newRootCmd() *rootCommand {
	a := &app{printer: ux.NewPrinter()}

	cmd := &cobra.Command{
		Use:   "check42",
		Short: "Check a 42 project submission against its coding policy",
		Long: `check42 verifies that a 42 Common Core submission only calls the library
functions its project allows, carries 42 headers and a README, has the
required files, and that make does not relink.

Exit Codes:
  0 = Compliant
  1 = Violations found
  2 = Error (unknown project, bad folder, invalid configuration)`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ux.InitPersonality()
			if a.output != "" {
				ux.SetPersonality(ux.ParsePersonalityLevel(a.output))
			}
			a.printer = &ux.Printer{
				Out:   cmd.OutOrStdout(),
				Err:   cmd.ErrOrStderr(),
				Level: ux.GetPersonality(),
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Config file (default: <dir>/"+config.FileName+")")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&a.logJSON, "log-json", false, "Write logs as JSON")
	flags.StringVarP(&a.output, "output", "o", "", "Output style: full, minimal, machine (env "+ux.EnvPersonality+")")

	cmd.AddCommand(
		newCheckCmd(a),
		newProjectsCmd(a),
		newServeCmd(a),
		newWatchCmd(a),
		newVersionCmd(a),
		newConfigCmd(a),
	)

	return &rootCommand{Command: cmd, app: a}
}

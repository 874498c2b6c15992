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
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/check42/pkg/ux"
	"github.com/AleutianAI/check42/pkg/version"
	"github.com/AleutianAI/check42/services/compliance"
	"github.com/AleutianAI/check42/services/compliance/rules"
)

type checkFlags struct {
	json         bool
	noCache      bool
	workers      int
	rulesFile    string
	allowDefined bool
	skipBuild    bool
	noNorminette bool
}

func newCheckCmd(a *app) *cobra.Command {
	var f checkFlags

	cmd := &cobra.Command{
		Use:   "check <dir> [project]",
		Short: "Check a submission folder",
		Long: `Run every compliance check on a submission folder.

The project name is matched case-insensitively; '-' and spaces count as '_'.
When it is omitted, check42 guesses it from the folder name, or asks in an
interactive terminal.

Examples:
  check42 check ./libft libft
  check42 check . ft_printf --json
  check42 check ~/push_swap --skip-build --no-cache

Exit Codes:
  0 = Compliant
  1 = Violations found
  2 = Error`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, a, f, args)
		},
	}

	cmd.Flags().BoolVar(&f.json, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "Do not read or write the call-set cache")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Parallel file workers (0 = one per CPU)")
	cmd.Flags().StringVar(&f.rulesFile, "rules", "", "Project rules YAML replacing the built-in table")
	cmd.Flags().BoolVar(&f.allowDefined, "allow-defined", false, "Also allow functions the submission defines itself")
	cmd.Flags().BoolVar(&f.skipBuild, "skip-build", false, "Skip the make relink check")
	cmd.Flags().BoolVar(&f.noNorminette, "no-norminette", false, "Skip norminette advisories")
	return cmd
}

// overrides maps explicitly set flags onto configuration keys.
func (f checkFlags) overrides(cmd *cobra.Command) map[string]any {
	o := map[string]any{}
	if cmd.Flags().Changed("workers") {
		o["workers"] = f.workers
	}
	if f.rulesFile != "" {
		o["rules_file"] = f.rulesFile
	}
	if cmd.Flags().Changed("allow-defined") {
		o["allow_defined"] = f.allowDefined
	}
	if f.noNorminette {
		o["norminette.enabled"] = false
	}
	return o
}

func runCheck(cmd *cobra.Command, a *app, f checkFlags, args []string) error {
	dir := args[0]
	if err := a.setup(cmd, dir, f.overrides(cmd)); err != nil {
		return fail(err)
	}

	checker, closeCache, err := compliance.FromConfig(a.cfg, compliance.SetupOptions{
		NoCache: f.noCache,
		Logger:  a.slog(),
	})
	if err != nil {
		return fail(err)
	}
	defer closeCache()

	project := ""
	if len(args) > 1 {
		project = args[1]
	} else if project, err = chooseProject(checker.Registry(), dir); err != nil {
		return fail(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !f.json && a.cfg.Update.URL != "" {
		notifyUpdate(ctx, a, a.printer)
	}

	spinner := a.printer.NewSpinner("Checking " + dir)
	if !f.json {
		spinner.Start()
	}
	report, err := checker.Check(ctx, compliance.Request{
		Directory: dir,
		Project:   project,
		SkipBuild: f.skipBuild,
	})
	spinner.Stop()

	if err != nil {
		if errors.Is(err, rules.ErrUnknownProject) {
			return fail(fmt.Errorf("unknown project %q. Run 'check42 projects list' to see supported projects", project))
		}
		return fail(err)
	}

	if f.json {
		if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
			return fail(err)
		}
	} else {
		renderReport(a.printer, report)
	}

	if code := report.ExitCode(); code != exitCodeOK {
		return &exitError{code: code}
	}
	return nil
}

// chooseProject guesses the project from the folder name and, in a
// terminal, confirms with a picker.
func chooseProject(reg *rules.Registry, dir string) (string, error) {
	guess := ""
	if abs, err := filepath.Abs(dir); err == nil {
		if p, ok := reg.Lookup(filepath.Base(abs)); ok {
			guess = p.Name()
		}
	}

	name, err := ux.SelectProject(reg.Names(), guess)
	switch {
	case err == nil:
		return name, nil
	case errors.Is(err, ux.ErrNotInteractive) && guess != "":
		return guess, nil
	case errors.Is(err, ux.ErrNotInteractive):
		return "", errors.New("project name required: check42 check <dir> <project>")
	default:
		return "", err
	}
}

// notifyUpdate prints a warning when a newer release is published. Any
// failure is logged and ignored.
func notifyUpdate(ctx context.Context, a *app, p *ux.Printer) {
	timeout := a.cfg.Update.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rel, newer, err := version.NewChecker(a.cfg.Update.URL, timeout).Check(ctx, version.Version)
	if err != nil {
		a.slog().Debug("update check failed", "error", err)
		return
	}
	if newer {
		msg := fmt.Sprintf("check42 %s is available (you have %s)", rel.Version, version.Version)
		if rel.URL != "" {
			msg += ": " + rel.URL
		}
		p.Warning(msg)
	}
}

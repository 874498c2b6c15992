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
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/check42/services/compliance"
	"github.com/AleutianAI/check42/services/compliance/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		f         checkFlags
		withBuild bool
	)

	cmd := &cobra.Command{
		Use:   "watch <dir> <project>",
		Short: "Re-run the source checks whenever the submission changes",
		Long: `Watch a submission folder and re-run the checks after each burst of
changes to .c, .h, Makefile or README.md files. The relink check is skipped
unless --build is given. Stop with Ctrl-C.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, project := args[0], args[1]
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

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			req := compliance.Request{Directory: dir, Project: project, SkipBuild: !withBuild}
			if err := runOnce(ctx, a, checker, req); err != nil {
				return fail(err)
			}

			w, err := watch.New(dir, watch.WithLogger(a.slog()))
			if err != nil {
				return fail(err)
			}
			defer w.Close()

			a.printer.Muted(fmt.Sprintf("Watching %s (Ctrl-C to stop)", dir))
			err = w.Run(ctx, func(ctx context.Context, events []watch.Event) {
				a.printer.Muted(fmt.Sprintf("%d file(s) changed, re-checking", len(events)))
				if err := runOnce(ctx, a, checker, req); err != nil && ctx.Err() == nil {
					a.printer.Error(err.Error())
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				return fail(err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withBuild, "build", false, "Also run the make relink check on each change")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "Do not read or write the call-set cache")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Parallel file workers (0 = one per CPU)")
	cmd.Flags().StringVar(&f.rulesFile, "rules", "", "Project rules YAML replacing the built-in table")
	cmd.Flags().BoolVar(&f.allowDefined, "allow-defined", false, "Also allow functions the submission defines itself")
	cmd.Flags().BoolVar(&f.noNorminette, "no-norminette", false, "Skip norminette advisories")
	return cmd
}

func runOnce(ctx context.Context, a *app, checker *compliance.Checker, req compliance.Request) error {
	report, err := checker.Check(ctx, req)
	if err != nil {
		return err
	}
	renderReport(a.printer, report)
	return nil
}

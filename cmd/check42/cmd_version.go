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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/check42/pkg/version"
)

func newVersionCmd(a *app) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the check42 version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "check42 %s (%s)\n", version.Version, version.Commit)
			if !check {
				return nil
			}

			if err := a.setup(cmd, "", nil); err != nil {
				return fail(err)
			}
			if a.cfg.Update.URL == "" {
				return fail(errors.New("update.url is not configured"))
			}

			checker := version.NewChecker(a.cfg.Update.URL, a.cfg.Update.Timeout)
			rel, newer, err := checker.Check(cmd.Context(), version.Version)
			if err != nil {
				return fail(fmt.Errorf("update check: %w", err))
			}
			if !newer {
				a.printer.Success("check42 is up to date.")
				return nil
			}
			msg := fmt.Sprintf("check42 %s is available", rel.Version)
			if rel.URL != "" {
				msg += ": " + rel.URL
			}
			a.printer.Warning(msg)
			if rel.Notes != "" {
				a.printer.Muted(rel.Notes)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Check for a newer release")
	return cmd
}

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

	"github.com/AleutianAI/check42/services/compliance"
	"github.com/AleutianAI/check42/services/compliance/rules"
)

func newProjectsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Inspect the project rules table",
	}

	var (
		listJSON  bool
		listRules string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List supported projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := loadRegistry(cmd, a, listRules)
			if err != nil {
				return fail(err)
			}
			if listJSON {
				if err := writeJSON(cmd.OutOrStdout(), map[string][]string{"projects": reg.Names()}); err != nil {
					return fail(err)
				}
				return nil
			}
			a.printer.Title("Supported 42 Common Core projects:")
			for _, name := range reg.Names() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
			}
			return nil
		},
	}
	list.Flags().BoolVar(&listJSON, "json", false, "Print as JSON")
	list.Flags().StringVar(&listRules, "rules", "", "Project rules YAML replacing the built-in table")

	var validateRules string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the project rules table",
		Long: `Validate the built-in project table, or the file given with --rules.

Exit Codes:
  0 = Valid
  1 = Validation issues found
  2 = Error (unreadable file)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := loadRegistry(cmd, a, validateRules)
			var verr *rules.ValidationError
			switch {
			case errors.As(err, &verr):
				a.printer.Fail("PROJECTS validation failed:")
				for _, issue := range verr.Issues {
					a.printer.Failure(issue)
				}
				return &exitError{code: exitCodeViolations}
			case errors.Is(err, rules.ErrInvalidRegistry):
				a.printer.Fail("PROJECTS validation failed:")
				a.printer.Failure(err.Error())
				return &exitError{code: exitCodeViolations}
			case err != nil:
				return fail(err)
			}
			a.printer.Success(fmt.Sprintf("PROJECTS validated: %d projects, no issues found.", reg.Len()))
			return nil
		},
	}
	validate.Flags().StringVar(&validateRules, "rules", "", "Rules YAML to validate instead of the built-in table")

	cmd.AddCommand(list, validate)
	return cmd
}

func loadRegistry(cmd *cobra.Command, a *app, rulesFile string) (*rules.Registry, error) {
	overrides := map[string]any{}
	if rulesFile != "" {
		overrides["rules_file"] = rulesFile
	}
	if err := a.setup(cmd, "", overrides); err != nil {
		return nil, err
	}
	return compliance.LoadRegistry(a.cfg)
}

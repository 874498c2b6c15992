// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// check42 verifies 42-school submissions against their project policy.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AleutianAI/check42/pkg/ux"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command tree and maps the outcome to an exit status.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.app.printer = &ux.Printer{Out: stdout, Err: stderr, Level: ux.GetPersonality()}

	err := root.Execute()
	defer root.app.close()

	var exit *exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exit):
		if exit.err != nil {
			root.app.printer.Error(exit.err.Error())
		}
		return exit.code
	default:
		root.app.printer.Error(fmt.Sprint(err))
		return exitCodeError
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
)

// ErrNotInteractive is returned by prompts when stdin or stdout is not a
// terminal.
var ErrNotInteractive = errors.New("not an interactive terminal")

// ErrAborted is returned when the user cancels a prompt.
var ErrAborted = errors.New("prompt aborted")

// SelectProject asks the user to pick one of names. suggested, when it is
// one of names, is preselected.
func SelectProject(names []string, suggested string) (string, error) {
	if len(names) == 0 {
		return "", errors.New("no projects to choose from")
	}
	if !IsInteractive() {
		return "", ErrNotInteractive
	}

	choice := names[0]
	for _, n := range names {
		if n == suggested {
			choice = n
			break
		}
	}

	height := len(names) + 2
	if height > 12 {
		height = 12
	}

	err := huh.NewSelect[string]().
		Title("Which 42 project is this?").
		Options(huh.NewOptions(names...)...).
		Height(height).
		Value(&choice).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return "", ErrAborted
	}
	if err != nil {
		return "", fmt.Errorf("project prompt: %w", err)
	}
	return choice, nil
}

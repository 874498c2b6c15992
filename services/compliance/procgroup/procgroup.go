// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package procgroup bounds external tools together with everything they
// spawn.
//
// exec.CommandContext only kills the direct child. A make recipe shell or
// gcc's cc1 keeps the output pipes open, and Wait blocks until they close.
// Bind starts the tool in its own process group, kills the whole group on
// cancellation and caps the time Wait spends draining pipes afterwards.
package procgroup

import (
	"os/exec"
	"time"
)

// DefaultWaitDelay caps how long Wait drains output after cancellation.
const DefaultWaitDelay = 2 * time.Second

// Bind prepares cmd, which must come from exec.CommandContext and not be
// started yet.
func Bind(cmd *exec.Cmd) {
	cmd.WaitDelay = DefaultWaitDelay
	isolate(cmd)
}

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
	"encoding/json"
	"fmt"
	"io"

	"github.com/AleutianAI/check42/pkg/ux"
	"github.com/AleutianAI/check42/services/compliance"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderReport prints advisories first, then the verdict and violations.
func renderReport(p *ux.Printer, r *compliance.Report) {
	p.Title(fmt.Sprintf("check42 · %s", r.Project))
	p.Muted(r.Directory)

	for _, a := range r.Advisories {
		p.Warning(a.Message)
	}

	if r.Compliant {
		p.Success("All compliance checks passed.")
	} else {
		p.Fail("Compliance check failed:")
		for _, v := range r.Violations {
			p.Failure(v.Message)
		}
	}

	p.Summary(len(r.Violations), len(r.Advisories), r.FilesAnalyzed)
}

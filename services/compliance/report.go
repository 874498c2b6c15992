// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compliance

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/check42/services/compliance/policy"
)

// Process exit codes for a check.
const (
	ExitCompliant  = 0
	ExitViolations = 1
	ExitError      = 2
)

// Report is the outcome of one check run.
type Report struct {
	RunID     string `json:"run_id"`
	Project   string `json:"project"`
	Directory string `json:"directory"`

	// Violations are ordered README, required paths, headers, forbidden
	// calls, relink.
	Violations []policy.Violation `json:"violations"`
	Advisories []policy.Advisory  `json:"advisories"`

	Compliant     bool          `json:"compliant"`
	FilesAnalyzed int           `json:"files_analyzed"`
	CacheHits     int           `json:"cache_hits"`
	Relink        string        `json:"relink"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration_ns"`
}

// ExitCode maps the verdict to the CLI exit status.
func (r *Report) ExitCode() int {
	if r.Compliant {
		return ExitCompliant
	}
	return ExitViolations
}

// Messages returns the violation messages in report order.
func (r *Report) Messages() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.Message
	}
	return out
}

var (
	meter = otel.Meter("check42.compliance")

	checksTotal      metric.Int64Counter
	checkDuration    metric.Float64Histogram
	checkMetricsOnce sync.Once
	checkMetricErr   error
)

func initCheckMetrics() error {
	checkMetricsOnce.Do(func() {
		checksTotal, checkMetricErr = meter.Int64Counter(
			"check42_checks_total",
			metric.WithDescription("Compliance checks completed, by verdict"),
		)
		if checkMetricErr != nil {
			return
		}
		checkDuration, checkMetricErr = meter.Float64Histogram(
			"check42_check_duration_seconds",
			metric.WithDescription("End-to-end compliance check duration"),
			metric.WithUnit("s"),
		)
	})
	return checkMetricErr
}

func recordCheck(ctx context.Context, r *Report) {
	if err := initCheckMetrics(); err != nil {
		return
	}
	verdict := "compliant"
	if !r.Compliant {
		verdict = "violations"
	}
	attrs := metric.WithAttributes(
		attribute.String("project", r.Project),
		attribute.String("verdict", verdict),
	)
	checksTotal.Add(ctx, 1, attrs)
	checkDuration.Record(ctx, r.Duration.Seconds(), metric.WithAttributes(attribute.String("project", r.Project)))
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scan

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("check42.scan")
	meter  = otel.Meter("check42.scan")
)

var (
	scanDuration   metric.Float64Histogram
	filesTotal     metric.Int64Counter
	violationTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		scanDuration, err = meter.Float64Histogram(
			"check42_scan_duration_seconds",
			metric.WithDescription("Duration of forbidden-call scans"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		filesTotal, err = meter.Int64Counter(
			"check42_scan_files_total",
			metric.WithDescription("Source units processed, by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		violationTotal, err = meter.Int64Counter(
			"check42_scan_forbidden_calls_total",
			metric.WithDescription("Forbidden-call violations reported"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordScan(ctx context.Context, res *Result) {
	if err := initMetrics(); err != nil {
		return
	}

	scanDuration.Record(ctx, res.Duration.Seconds())
	filesTotal.Add(ctx, int64(res.Analyzed-res.CacheHits), metric.WithAttributes(attribute.String("outcome", "analyzed")))
	filesTotal.Add(ctx, int64(res.CacheHits), metric.WithAttributes(attribute.String("outcome", "cached")))
	filesTotal.Add(ctx, int64(res.Skipped), metric.WithAttributes(attribute.String("outcome", "skipped")))
	violationTotal.Add(ctx, int64(len(res.Violations)))
}

func startScanSpan(ctx context.Context, units int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Scanner.Scan",
		trace.WithAttributes(attribute.Int("scan.units", units)),
	)
}

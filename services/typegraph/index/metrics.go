// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for index operations.
var (
	tracer = otel.Tracer("typegraph.index")
	meter  = otel.Meter("typegraph.index")
)

// Metrics for index building and query computation.
var (
	buildLatency   metric.Float64Histogram
	buildTotal     metric.Int64Counter
	nodesCreated   metric.Int64Histogram
	edgesCreated   metric.Int64Histogram
	droppedTotal   metric.Int64Counter
	computeLatency metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"typegraph_build_duration_seconds",
			metric.WithDescription("Duration of index build operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"typegraph_build_total",
			metric.WithDescription("Total number of index build operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesCreated, err = meter.Int64Histogram(
			"typegraph_nodes_created",
			metric.WithDescription("Number of nodes created per build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesCreated, err = meter.Int64Histogram(
			"typegraph_edges_created",
			metric.WithDescription("Number of direct edges and cross-links created per build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		droppedTotal, err = meter.Int64Counter(
			"typegraph_relations_dropped_total",
			metric.WithDescription("Relations not wired into the graph"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		computeLatency, err = meter.Float64Histogram(
			"typegraph_query_compute_duration_seconds",
			metric.WithDescription("Duration of lazy query index computations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for a build operation.
func recordBuildMetrics(ctx context.Context, duration time.Duration, stats BuildStats, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))

	buildLatency.Record(ctx, duration.Seconds(), attrs)
	buildTotal.Add(ctx, 1, attrs)

	if success {
		nodesCreated.Record(ctx, int64(stats.NodesCreated))
		edgesCreated.Record(ctx, int64(stats.DirectEdges+stats.CrossLinks))
		droppedTotal.Add(ctx, int64(stats.UnknownReferences), metric.WithAttributes(attribute.String("reason", "unknown_name")))
		droppedTotal.Add(ctx, int64(stats.CrossKindEdges), metric.WithAttributes(attribute.String("reason", "cross_kind")))
		droppedTotal.Add(ctx, int64(stats.IgnoredRelations), metric.WithAttributes(attribute.String("reason", "ignored")))
	}
}

// recordComputeMetrics records one lazy computation of a query index.
func recordComputeMetrics(query string, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}

	computeLatency.Record(context.Background(), duration.Seconds(),
		metric.WithAttributes(attribute.String("query", query)),
	)
}

// startBuildSpan creates a span for a build operation.
func startBuildSpan(ctx context.Context, factCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "index.Build",
		trace.WithAttributes(
			attribute.Int("typegraph.fact_count", factCount),
		),
	)
}

// setBuildSpanResult sets the result attributes on a build span.
func setBuildSpanResult(span trace.Span, stats BuildStats) {
	span.SetAttributes(
		attribute.Int("typegraph.node_count", stats.NodesCreated),
		attribute.Int("typegraph.direct_edges", stats.DirectEdges),
		attribute.Int("typegraph.cross_links", stats.CrossLinks),
		attribute.Int("typegraph.dropped", stats.DroppedTotal()),
	)
}

// startQuerySpan creates a span for a dispatched query.
func startQuerySpan(ctx context.Context, query Query, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "index.Query",
		trace.WithAttributes(
			attribute.String("typegraph.query", string(query)),
			attribute.String("typegraph.name", name),
		),
	)
}

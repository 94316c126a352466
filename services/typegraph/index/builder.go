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
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/typegraph/services/typegraph/facts"
	"github.com/AleutianAI/typegraph/services/typegraph/graph"
)

// BuildOptions configures Build.
type BuildOptions struct {
	// Logger receives build progress. Default: slog.Default()
	Logger *slog.Logger

	// MaxNodes limits the graph size. Default: graph.DefaultMaxNodes
	MaxNodes int

	// Normalize configures fact normalization.
	Normalize facts.NormalizeOptions
}

// BuildOption is a functional option for configuring Build.
type BuildOption func(*BuildOptions)

// WithLogger sets the logger used by Build and by the returned Index.
func WithLogger(logger *slog.Logger) BuildOption {
	return func(o *BuildOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithMaxNodes sets the maximum number of entities.
func WithMaxNodes(n int) BuildOption {
	return func(o *BuildOptions) {
		o.MaxNodes = n
	}
}

// WithMergeAuxiliary folds auxiliary types ("Foo$", "Foo$class") into their
// base type before building.
func WithMergeAuxiliary(enabled bool) BuildOption {
	return func(o *BuildOptions) {
		o.Normalize.MergeAuxiliary = enabled
	}
}

// Build constructs an Index from a complete fact set.
//
// Description:
//
//	Normalizes the facts, creates one node per entity, then wires every
//	relation:
//	  - standard type implements interface: cross-link type→interface
//	  - interface extends interface: direct edge superinterface→subinterface
//	  - superclass: direct edge superclass→subclass
//	  - annotation on an annotation: direct edge meta-annotation→annotation
//	  - annotation on anything else: cross-link annotation→entity
//	Relations to unknown names or to entities of the wrong kind are dropped
//	and counted in BuildStats, never reported as errors. Finally the
//	closure of each kind is computed and the graph frozen.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing. Checked between phases.
//	in - The facts. Not modified.
//	opts - Optional configuration.
//
// Outputs:
//
//	*Index - Read-only index. Queries are computed lazily.
//	error - Non-nil on invalid facts, kind conflicts, cycles or cancellation.
//
// Errors:
//
//	facts.ErrInvalidFact, facts.ErrKindConflict - Normalization failed
//	graph.ErrCycle (as *graph.CycleError) - Direct edges of a kind are cyclic
//	graph.ErrMaxNodesExceeded - Too many entities
//	context.Canceled, context.DeadlineExceeded - ctx is done
func Build(ctx context.Context, in []facts.Fact, opts ...BuildOption) (*Index, error) {
	options := BuildOptions{
		Logger:   slog.Default(),
		MaxNodes: graph.DefaultMaxNodes,
	}
	for _, opt := range opts {
		opt(&options)
	}

	start := time.Now()
	ctx, span := startBuildSpan(ctx, len(in))
	defer span.End()

	idx, err := build(ctx, in, options)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordBuildMetrics(ctx, duration, BuildStats{}, false)
		options.Logger.Warn("type index build failed",
			slog.Int("facts", len(in)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	idx.stats.DurationMicro = duration.Microseconds()
	setBuildSpanResult(span, idx.stats)
	recordBuildMetrics(ctx, duration, idx.stats, true)

	options.Logger.Info("type index built",
		slog.Int("nodes", idx.stats.NodesCreated),
		slog.Int("direct_edges", idx.stats.DirectEdges),
		slog.Int("cross_links", idx.stats.CrossLinks),
		slog.Int("dropped", idx.stats.DroppedTotal()),
		slog.Duration("duration", duration),
	)
	return idx, nil
}

func build(ctx context.Context, in []facts.Fact, options BuildOptions) (*Index, error) {
	normalized, nstats, err := facts.Normalize(in, options.Normalize)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := BuildStats{Facts: len(normalized), Normalized: nstats}
	g := graph.NewGraph(graph.WithMaxNodes(options.MaxNodes))

	ids := make([]graph.NodeID, len(normalized))
	for i, f := range normalized {
		id, err := g.AddNode(f.Name, f.Kind)
		if err != nil {
			return nil, fmt.Errorf("adding %s: %w", f.Name, err)
		}
		ids[i] = id
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, f := range normalized {
		if err := wire(g, &stats, ids[i], f); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := g.Close(); err != nil {
		return nil, fmt.Errorf("computing closure: %w", err)
	}

	stats.NodesCreated = g.NodeCount()
	stats.DirectEdges = g.DirectEdgeCount()
	stats.CrossLinks = g.CrossLinkCount()

	return newIndex(g, stats, options.Logger), nil
}

// wire adds the edges declared by one normalized fact.
func wire(g *graph.Graph, stats *BuildStats, id graph.NodeID, f facts.Fact) error {
	resolve := func(name string, rel Relation, want graph.Kind) (graph.NodeID, bool) {
		target, ok := g.Lookup(name)
		if !ok {
			stats.drop(f.Name, name, rel, ErrUnknownName)
			return 0, false
		}
		if target.Kind != want {
			stats.drop(f.Name, name, rel, ErrCrossKind)
			return 0, false
		}
		return target.ID, true
	}

	for _, name := range f.Superclasses {
		if super, ok := resolve(name, RelationSuperclass, f.Kind); ok {
			if err := g.AddChild(super, id); err != nil {
				return err
			}
		}
	}

	for _, name := range f.Interfaces {
		if f.Kind == graph.KindAnnotation {
			stats.drop(f.Name, name, RelationInterface, ErrIgnoredRelation)
			continue
		}
		iface, ok := resolve(name, RelationInterface, graph.KindInterface)
		if !ok {
			continue
		}
		var err error
		if f.Kind == graph.KindInterface {
			err = g.AddChild(iface, id)
		} else {
			err = g.AddCrossLink(id, iface)
		}
		if err != nil {
			return err
		}
	}

	for _, name := range f.Annotations {
		ann, ok := resolve(name, RelationAnnotation, graph.KindAnnotation)
		if !ok {
			continue
		}
		var err error
		if f.Kind == graph.KindAnnotation {
			err = g.AddChild(ann, id)
		} else {
			err = g.AddCrossLink(ann, id)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

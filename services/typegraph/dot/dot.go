// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dot renders a type graph as a GraphViz digraph.
//
// Standard types are drawn as yellow boxes, interfaces as cyan diamonds and
// annotations as magenta ovals. Edges point from an entity to what it
// extends, implements or is annotated with; the arrowhead tells the
// relation apart:
//
//	class → superclass                plain
//	class → implemented interface     odiamond
//	interface → superinterface        diamond
//	annotation → meta-annotation      dot
//	annotated entity → annotation     odot
package dot

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/AleutianAI/typegraph/services/typegraph/graph"
)

// Options configures Render.
type Options struct {
	// Size is the GraphViz size attribute. Default: "400,400"
	Size string

	// Layout is the GraphViz layout engine. Default: "neato"
	Layout string

	// SplitLabels breaks labels after the last '.' so the package and
	// the simple name sit on separate lines. Default: true
	SplitLabels bool
}

// DefaultOptions returns the default rendering options.
func DefaultOptions() Options {
	return Options{
		Size:        "400,400",
		Layout:      "neato",
		SplitLabels: true,
	}
}

// Option is a functional option for configuring Render.
type Option func(*Options)

// WithLayout sets the layout engine, e.g. "dot" or "fdp".
func WithLayout(layout string) Option {
	return func(o *Options) {
		o.Layout = layout
	}
}

// WithSize sets the drawing size.
func WithSize(size string) Option {
	return func(o *Options) {
		o.Size = size
	}
}

// WithSplitLabels enables or disables two-line labels.
func WithSplitLabels(split bool) Option {
	return func(o *Options) {
		o.SplitLabels = split
	}
}

type nodeStyle struct {
	kind  graph.Kind
	shape string
	fill  string
}

var nodeStyles = []nodeStyle{
	{graph.KindStandard, "box", "#eeeeaa"},
	{graph.KindInterface, "diamond", "#aaeeee"},
	{graph.KindAnnotation, "oval", "#eeaaee"},
}

// Render writes g as a dot document to w.
//
// Description:
//
//	Nodes and edges are emitted in name order so equal graphs render to
//	identical output. Only direct edges and cross-links are drawn, not the
//	closure.
//
// Outputs:
//
//	error - The first write error, if any.
func Render(w io.Writer, g *graph.Graph, opts ...Option) error {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	r := &renderer{w: bufio.NewWriter(w), g: g, opts: options}
	r.printf("digraph {\n")
	r.printf("size=%s;\n", quote(options.Size))
	r.printf("layout=%s;\n", options.Layout)
	r.printf("overlap=false;\n")
	r.printf("splines=true;\n")
	r.printf("pack=true;\n")
	r.printf("start=\"random\";\n")
	r.printf("sep=0.1;\n")
	r.printf("edge[len=2];\n")

	for _, style := range nodeStyles {
		r.printf("\nnode[shape=%s,style=filled,fillcolor=%s];\n", style.shape, quote(style.fill))
		for _, id := range r.sorted(g.NodesOfKind(style.kind)) {
			r.printf("  %s\n", r.label(id))
		}
	}

	r.printf("\n")
	for _, id := range r.sorted(g.NodesOfKind(graph.KindStandard)) {
		n := g.Node(id)
		for _, super := range r.sorted(n.Parents()) {
			r.edge(id, super, "")
		}
		for _, iface := range r.sorted(n.CrossLinks()) {
			r.edge(id, iface, "odiamond")
		}
	}
	for _, id := range r.sorted(g.NodesOfKind(graph.KindInterface)) {
		for _, super := range r.sorted(g.Node(id).Parents()) {
			r.edge(id, super, "diamond")
		}
	}
	for _, id := range r.sorted(g.NodesOfKind(graph.KindAnnotation)) {
		n := g.Node(id)
		for _, meta := range r.sorted(n.Parents()) {
			r.edge(id, meta, "dot")
		}
		for _, annotated := range r.sorted(n.CrossLinks()) {
			r.edge(annotated, id, "odot")
		}
	}
	r.printf("}\n")

	if r.err != nil {
		return r.err
	}
	return r.w.Flush()
}

// Label returns the dot label for an entity name, split after the last '.'
// when split is true. The result is not quoted.
func Label(name string, split bool) string {
	escaped := strings.ReplaceAll(name, `"`, `\"`)
	if !split {
		return escaped
	}
	i := strings.LastIndex(escaped, ".")
	if i < 0 {
		return escaped
	}
	return escaped[:i+1] + `\n` + escaped[i+1:]
}

type renderer struct {
	w    *bufio.Writer
	g    *graph.Graph
	opts Options
	err  error
}

func (r *renderer) printf(format string, args ...any) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format, args...)
}

func (r *renderer) label(id graph.NodeID) string {
	return `"` + Label(r.g.Name(id), r.opts.SplitLabels) + `"`
}

func (r *renderer) edge(from, to graph.NodeID, arrowhead string) {
	if arrowhead == "" {
		r.printf("  %s -> %s\n", r.label(from), r.label(to))
		return
	}
	r.printf("  %s -> %s [arrowhead=%s]\n", r.label(from), r.label(to), arrowhead)
}

// sorted returns a copy of ids ordered by node name.
func (r *renderer) sorted(ids []graph.NodeID) []graph.NodeID {
	out := append([]graph.NodeID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return r.g.Name(out[i]) < r.g.Name(out[j]) })
	return out
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

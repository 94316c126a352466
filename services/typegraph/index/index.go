// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index answers reachability queries over a type-relationship graph.
//
// An Index is built once from a complete fact set and is read-only
// afterwards. Every query is computed lazily on first use and cached:
// forward relations per name or in one bulk pass, inverse relations always
// derived from the forward sets. Results are sorted, deduplicated, and an
// empty non-nil slice for names that are unknown or of the wrong kind.
//
// # Thread Safety
//
// Index is safe for concurrent use. Concurrent first calls of the same query
// compute it exactly once.
package index

import (
	"log/slog"
	"sort"
	"time"

	"github.com/AleutianAI/typegraph/services/typegraph/graph"
	"github.com/AleutianAI/typegraph/services/typegraph/lazy"
	"github.com/AleutianAI/typegraph/services/typegraph/multimap"
)

// emptyNames is returned for unknown names. Callers MUST NOT modify results.
var emptyNames = []string{}

// Index is a frozen type graph with lazily computed query results.
//
// Slices returned by query methods are shared with the cache and MUST NOT
// be modified.
type Index struct {
	g      *graph.Graph
	stats  BuildStats
	logger *slog.Logger

	allNames        *lazy.Value[[]string]
	standardNames   *lazy.Value[[]string]
	interfaceNames  *lazy.Value[[]string]
	annotationNames *lazy.Value[[]string]

	subclasses      *lazy.Cache[string, []string]
	superclasses    *lazy.Cache[string, []string]
	subinterfaces   *lazy.Cache[string, []string]
	superinterfaces *lazy.Cache[string, []string]

	classesImplementing     *lazy.Cache[string, []string]
	interfacesImplementedBy *lazy.Cache[string, []string]

	classesWithAnnotation *lazy.Cache[string, []string]
	annotationsOn         *lazy.Cache[string, []string]

	annotationsWithMeta *lazy.Cache[string, []string]
	metaAnnotationsOn   *lazy.Cache[string, []string]
}

func newIndex(g *graph.Graph, stats BuildStats, logger *slog.Logger) *Index {
	x := &Index{g: g, stats: stats, logger: logger}

	x.allNames = lazy.NewValue(timedValue(QueryAllNames, x.computeAllNames))
	x.standardNames = lazy.NewValue(timedValue(QueryStandardClasses, x.namesOfKind(graph.KindStandard)))
	x.interfaceNames = lazy.NewValue(timedValue(QueryInterfaces, x.namesOfKind(graph.KindInterface)))
	x.annotationNames = lazy.NewValue(timedValue(QueryAnnotations, x.namesOfKind(graph.KindAnnotation)))

	x.subclasses = lazy.NewPerKey(timedGenerate(QuerySubclasses, x.closure(graph.KindStandard, (*graph.Node).Descendants)))
	x.superclasses = lazy.NewPerKey(timedGenerate(QuerySuperclasses, x.closure(graph.KindStandard, (*graph.Node).Ancestors)))
	x.subinterfaces = lazy.NewPerKey(timedGenerate(QuerySubinterfaces, x.closure(graph.KindInterface, (*graph.Node).Descendants)))
	x.superinterfaces = lazy.NewPerKey(timedGenerate(QuerySuperinterfaces, x.closure(graph.KindInterface, (*graph.Node).Ancestors)))

	x.classesImplementing = lazy.NewBulk(timedPopulate(QueryClassesImplementing, x.computeClassesImplementing))
	x.interfacesImplementedBy = lazy.NewBulk(timedPopulate(QueryInterfacesImplementedBy,
		x.inverse(x.InterfaceNames, x.classesImplementing)))

	x.classesWithAnnotation = lazy.NewPerKey(timedGenerate(QueryClassesWithAnnotation, x.computeClassesWithAnnotation))
	x.annotationsOn = lazy.NewBulk(timedPopulate(QueryAnnotationsOn,
		x.inverse(x.AnnotationNames, x.classesWithAnnotation)))

	x.annotationsWithMeta = lazy.NewPerKey(timedGenerate(QueryAnnotationsWithMetaAnnotation,
		x.closure(graph.KindAnnotation, (*graph.Node).Descendants)))
	x.metaAnnotationsOn = lazy.NewBulk(timedPopulate(QueryMetaAnnotationsOn,
		x.inverse(x.AnnotationNames, x.annotationsWithMeta)))

	return x
}

// Graph returns the underlying frozen graph.
func (x *Index) Graph() *graph.Graph {
	return x.g
}

// Stats returns the build statistics.
func (x *Index) Stats() BuildStats {
	return x.stats
}

// KindOf returns the kind of the named entity.
func (x *Index) KindOf(name string) (graph.Kind, bool) {
	n, ok := x.g.Lookup(name)
	if !ok {
		return graph.KindUnspecified, false
	}
	return n.Kind, true
}

// Contains reports whether name is a known entity.
func (x *Index) Contains(name string) bool {
	_, ok := x.g.Lookup(name)
	return ok
}

// AllNames returns every entity name.
func (x *Index) AllNames() []string { return x.allNames.Get() }

// StandardClassNames returns the names of every standard type.
func (x *Index) StandardClassNames() []string { return x.standardNames.Get() }

// InterfaceNames returns the names of every interface.
func (x *Index) InterfaceNames() []string { return x.interfaceNames.Get() }

// AnnotationNames returns the names of every annotation.
func (x *Index) AnnotationNames() []string { return x.annotationNames.Get() }

// SubclassesOf returns every direct and indirect subclass of a standard type.
func (x *Index) SubclassesOf(name string) []string { return get(x.subclasses, name) }

// SuperclassesOf returns every direct and indirect superclass of a standard type.
func (x *Index) SuperclassesOf(name string) []string { return get(x.superclasses, name) }

// SubinterfacesOf returns every interface extending iface, directly or not.
func (x *Index) SubinterfacesOf(iface string) []string { return get(x.subinterfaces, iface) }

// SuperinterfacesOf returns every interface iface extends, directly or not.
func (x *Index) SuperinterfacesOf(iface string) []string { return get(x.superinterfaces, iface) }

// ClassesImplementing returns the standard types implementing iface.
//
// A type implements iface when it declares iface or any sub-interface of
// iface, or when one of its superclasses does.
func (x *Index) ClassesImplementing(iface string) []string {
	return get(x.classesImplementing, iface)
}

// InterfacesImplementedBy returns every interface the standard type
// implements, including inherited and extended ones.
func (x *Index) InterfacesImplementedBy(name string) []string {
	return get(x.interfacesImplementedBy, name)
}

// ClassesWithAnnotation returns the non-annotation entities carrying the
// annotation, or any annotation meta-annotated with it.
func (x *Index) ClassesWithAnnotation(annotation string) []string {
	return get(x.classesWithAnnotation, annotation)
}

// AnnotationsOn returns every annotation whose ClassesWithAnnotation
// contains name.
func (x *Index) AnnotationsOn(name string) []string {
	return get(x.annotationsOn, name)
}

// AnnotationsWithMetaAnnotation returns every annotation meta-annotated
// with meta, directly or not.
func (x *Index) AnnotationsWithMetaAnnotation(meta string) []string {
	return get(x.annotationsWithMeta, meta)
}

// MetaAnnotationsOn returns the direct and indirect meta-annotations of an
// annotation.
func (x *Index) MetaAnnotationsOn(annotation string) []string {
	return get(x.metaAnnotationsOn, annotation)
}

// Warm computes every bulk query index and name list eagerly. Per-name
// queries stay lazy.
func (x *Index) Warm() {
	x.AllNames()
	x.StandardClassNames()
	x.InterfaceNames()
	x.AnnotationNames()
	x.classesImplementing.Warm()
	x.interfacesImplementedBy.Warm()
	x.annotationsOn.Warm()
	x.metaAnnotationsOn.Warm()
}

// CacheStats returns the lazy cache counters keyed by query name.
func (x *Index) CacheStats() map[Query]lazy.Stats {
	return map[Query]lazy.Stats{
		QueryAllNames:                      x.allNames.Stats(),
		QueryStandardClasses:               x.standardNames.Stats(),
		QueryInterfaces:                    x.interfaceNames.Stats(),
		QueryAnnotations:                   x.annotationNames.Stats(),
		QuerySubclasses:                    x.subclasses.Stats(),
		QuerySuperclasses:                  x.superclasses.Stats(),
		QuerySubinterfaces:                 x.subinterfaces.Stats(),
		QuerySuperinterfaces:               x.superinterfaces.Stats(),
		QueryClassesImplementing:           x.classesImplementing.Stats(),
		QueryInterfacesImplementedBy:       x.interfacesImplementedBy.Stats(),
		QueryClassesWithAnnotation:         x.classesWithAnnotation.Stats(),
		QueryAnnotationsOn:                 x.annotationsOn.Stats(),
		QueryAnnotationsWithMetaAnnotation: x.annotationsWithMeta.Stats(),
		QueryMetaAnnotationsOn:             x.metaAnnotationsOn.Stats(),
	}
}

func get(c *lazy.Cache[string, []string], name string) []string {
	if v, ok := c.Get(name); ok {
		return v
	}
	return emptyNames
}

func (x *Index) computeAllNames() []string {
	names := make([]string, 0, x.g.NodeCount())
	for id := graph.NodeID(0); int(id) < x.g.NodeCount(); id++ {
		names = append(names, x.g.Name(id))
	}
	sort.Strings(names)
	return names
}

func (x *Index) namesOfKind(kind graph.Kind) func() []string {
	return func() []string {
		names := x.g.Names(x.g.NodesOfKind(kind))
		sort.Strings(names)
		return names
	}
}

// closure returns a generator for one side of a kind's closure. Names of
// another kind are absent.
func (x *Index) closure(kind graph.Kind, side func(*graph.Node) []graph.NodeID) lazy.GenerateFunc[string, []string] {
	return func(name string) ([]string, bool) {
		n, ok := x.g.Lookup(name)
		if !ok || n.Kind != kind {
			return nil, false
		}
		names := x.g.Names(side(n))
		sort.Strings(names)
		return names, true
	}
}

// computeClassesImplementing maps each interface to the standard types that
// implement it. A type cross-linked to J, together with its subclasses,
// implements J and every superinterface of J.
func (x *Index) computeClassesImplementing() map[string][]string {
	sets := make(map[string]multimap.Set[string])
	for _, id := range x.g.NodesOfKind(graph.KindStandard) {
		n := x.g.Node(id)
		if len(n.CrossLinks()) == 0 {
			continue
		}
		implementors := append([]graph.NodeID{id}, n.Descendants()...)
		for _, ifaceID := range n.CrossLinks() {
			iface := x.g.Node(ifaceID)
			targets := append([]graph.NodeID{ifaceID}, iface.Ancestors()...)
			for _, t := range targets {
				for _, c := range implementors {
					multimap.Insert(sets, x.g.Name(t), x.g.Name(c))
				}
			}
		}
	}
	return multimap.ToSorted(sets)
}

// computeClassesWithAnnotation collects the entities cross-linked to the
// annotation and to each of its sub-annotations.
func (x *Index) computeClassesWithAnnotation(name string) ([]string, bool) {
	n, ok := x.g.Lookup(name)
	if !ok || n.Kind != graph.KindAnnotation {
		return nil, false
	}
	set := multimap.NewSet[string]()
	addLinks := func(a *graph.Node) {
		for _, e := range a.CrossLinks() {
			set.Add(x.g.Name(e))
		}
	}
	addLinks(n)
	for _, d := range n.Descendants() {
		addLinks(x.g.Node(d))
	}
	return multimap.Sorted(set), true
}

// inverse derives a bulk populate function that transposes forward over the
// names returned by universe.
func (x *Index) inverse(universe func() []string, forward *lazy.Cache[string, []string]) lazy.PopulateFunc[string, []string] {
	return func() map[string][]string {
		inverted := multimap.Invert(universe(), func(key string) (multimap.Set[string], bool) {
			values, ok := forward.Get(key)
			if !ok {
				return nil, false
			}
			return multimap.NewSet(values...), true
		})
		return multimap.ToSorted(inverted)
	}
}

func timedValue(q Query, fn func() []string) func() []string {
	return func() []string {
		start := time.Now()
		defer func() { recordComputeMetrics(string(q), time.Since(start)) }()
		return fn()
	}
}

func timedGenerate(q Query, fn lazy.GenerateFunc[string, []string]) lazy.GenerateFunc[string, []string] {
	return func(key string) ([]string, bool) {
		start := time.Now()
		defer func() { recordComputeMetrics(string(q), time.Since(start)) }()
		return fn(key)
	}
}

func timedPopulate(q Query, fn lazy.PopulateFunc[string, []string]) lazy.PopulateFunc[string, []string] {
	return func() map[string][]string {
		start := time.Now()
		defer func() { recordComputeMetrics(string(q), time.Since(start)) }()
		return fn()
	}
}

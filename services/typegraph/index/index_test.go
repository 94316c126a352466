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
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/typegraph/services/typegraph/facts"
	"github.com/AleutianAI/typegraph/services/typegraph/graph"
)

func scenarioFacts() []facts.Fact {
	return []facts.Fact{
		{Name: "Animal", Kind: graph.KindStandard},
		{Name: "Dog", Kind: graph.KindStandard, Superclasses: []string{"Animal"}},
		{Name: "Pet", Kind: graph.KindInterface},
		{Name: "Dog", Interfaces: []string{"Pet"}},
		{Name: "Deprecated", Kind: graph.KindAnnotation},
		{Name: "Dog", Annotations: []string{"Deprecated"}},
	}
}

// metaScenarioFacts adds Meta as a meta-annotation of Deprecated.
func metaScenarioFacts() []facts.Fact {
	return append(scenarioFacts(),
		facts.Fact{Name: "Meta", Kind: graph.KindAnnotation},
		facts.Fact{Name: "Deprecated", Kind: graph.KindAnnotation, Annotations: []string{"Meta"}},
	)
}

func mustBuild(t *testing.T, in []facts.Fact, opts ...BuildOption) *Index {
	t.Helper()
	idx, err := Build(context.Background(), in, opts...)
	require.NoError(t, err)
	return idx
}

func TestBuild_EndToEnd(t *testing.T) {
	idx := mustBuild(t, scenarioFacts())

	assert.Equal(t, []string{"Dog"}, idx.SubclassesOf("Animal"))
	assert.Equal(t, []string{"Animal"}, idx.SuperclassesOf("Dog"))
	assert.Equal(t, []string{"Dog"}, idx.ClassesImplementing("Pet"))
	assert.Equal(t, []string{"Pet"}, idx.InterfacesImplementedBy("Dog"))
	assert.Equal(t, []string{"Dog"}, idx.ClassesWithAnnotation("Deprecated"))
	assert.Equal(t, []string{"Deprecated"}, idx.AnnotationsOn("Dog"))
	assert.Empty(t, idx.SubclassesOf("Pet"), "interfaces and classes form separate DAGs")

	assert.Equal(t, []string{"Animal", "Deprecated", "Dog", "Pet"}, idx.AllNames())
	assert.Equal(t, []string{"Animal", "Dog"}, idx.StandardClassNames())
	assert.Equal(t, []string{"Pet"}, idx.InterfaceNames())
	assert.Equal(t, []string{"Deprecated"}, idx.AnnotationNames())

	kind, ok := idx.KindOf("Pet")
	assert.True(t, ok)
	assert.Equal(t, graph.KindInterface, kind)
	_, ok = idx.KindOf("Cat")
	assert.False(t, ok)
	assert.True(t, idx.Contains("Dog"))
}

func TestBuild_MetaAnnotations(t *testing.T) {
	idx := mustBuild(t, metaScenarioFacts())

	assert.Equal(t, []string{"Meta"}, idx.MetaAnnotationsOn("Deprecated"))
	assert.Equal(t, []string{"Deprecated"}, idx.AnnotationsWithMetaAnnotation("Meta"))
	assert.Contains(t, idx.ClassesWithAnnotation("Meta"), "Dog", "meta-annotation inheritance")
	assert.Empty(t, idx.MetaAnnotationsOn("Meta"))
	assert.Empty(t, idx.ClassesWithAnnotation("Dog"), "Dog is not an annotation")
	assert.Equal(t, []string{"Deprecated", "Meta"}, idx.AnnotationsOn("Dog"))
	assert.Equal(t, 2, idx.Stats().DirectEdges, "Animal→Dog and Meta→Deprecated")
}

func TestBuild_UnknownNamesReturnEmpty(t *testing.T) {
	idx := mustBuild(t, scenarioFacts())

	queries := map[string]func(string) []string{
		"SubclassesOf":                  idx.SubclassesOf,
		"SuperclassesOf":                idx.SuperclassesOf,
		"SubinterfacesOf":               idx.SubinterfacesOf,
		"SuperinterfacesOf":             idx.SuperinterfacesOf,
		"ClassesImplementing":           idx.ClassesImplementing,
		"InterfacesImplementedBy":       idx.InterfacesImplementedBy,
		"ClassesWithAnnotation":         idx.ClassesWithAnnotation,
		"AnnotationsOn":                 idx.AnnotationsOn,
		"AnnotationsWithMetaAnnotation": idx.AnnotationsWithMetaAnnotation,
		"MetaAnnotationsOn":             idx.MetaAnnotationsOn,
	}
	for name, q := range queries {
		t.Run(name, func(t *testing.T) {
			got := q("NoSuchType")
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestBuild_EmptyFactSet(t *testing.T) {
	idx := mustBuild(t, nil)
	assert.NotNil(t, idx.AllNames())
	assert.Empty(t, idx.AllNames())
	assert.Empty(t, idx.ClassesImplementing("I"))
	idx.Warm()
}

// A class implementing J implements every superinterface of J, and
// subclasses inherit implementations.
func TestClassesImplementing_Inheritance(t *testing.T) {
	idx := mustBuild(t, []facts.Fact{
		{Name: "Collection", Kind: graph.KindInterface},
		{Name: "List", Kind: graph.KindInterface, Interfaces: []string{"Collection"}},
		{Name: "RandomAccess", Kind: graph.KindInterface},
		{Name: "AbstractList", Interfaces: []string{"List"}},
		{Name: "ArrayList", Superclasses: []string{"AbstractList"}, Interfaces: []string{"RandomAccess"}},
		{Name: "Stack", Superclasses: []string{"ArrayList"}},
		{Name: "Unrelated"},
	})

	assert.Equal(t, []string{"AbstractList", "ArrayList", "Stack"}, idx.ClassesImplementing("Collection"))
	assert.Equal(t, []string{"AbstractList", "ArrayList", "Stack"}, idx.ClassesImplementing("List"))
	assert.Equal(t, []string{"ArrayList", "Stack"}, idx.ClassesImplementing("RandomAccess"))
	assert.Equal(t, []string{"Collection", "List", "RandomAccess"}, idx.InterfacesImplementedBy("Stack"))
	assert.Empty(t, idx.InterfacesImplementedBy("Unrelated"))

	assert.Equal(t, []string{"List"}, idx.SubinterfacesOf("Collection"))
	assert.Equal(t, []string{"Collection"}, idx.SuperinterfacesOf("List"))
	assert.Equal(t, []string{"ArrayList", "Stack"}, idx.SubclassesOf("AbstractList"))
	assert.Equal(t, []string{"AbstractList", "ArrayList"}, idx.SuperclassesOf("Stack"))
}

func TestBuild_DropsUnknownAndCrossKind(t *testing.T) {
	idx := mustBuild(t, []facts.Fact{
		{Name: "C", Superclasses: []string{"Missing", "I"}, Interfaces: []string{"C2", "I"}, Annotations: []string{"Gone"}},
		{Name: "C2"},
		{Name: "I", Kind: graph.KindInterface},
		{Name: "A", Kind: graph.KindAnnotation, Interfaces: []string{"I"}},
	})

	stats := idx.Stats()
	assert.Equal(t, 2, stats.UnknownReferences)
	assert.Equal(t, 2, stats.CrossKindEdges)
	assert.Equal(t, 1, stats.IgnoredRelations)
	assert.Equal(t, 5, stats.DroppedTotal())
	assert.Len(t, stats.Dropped, 5)
	assert.Equal(t, 4, stats.NodesCreated)
	assert.Equal(t, 0, stats.DirectEdges)
	assert.Equal(t, 1, stats.CrossLinks)

	// Facts are wired in name order: A, C, C2, I.
	assert.True(t, errors.Is(stats.Dropped[0], ErrIgnoredRelation))
	assert.Equal(t, DroppedRelation{From: "C", To: "Missing", Relation: RelationSuperclass, Err: ErrUnknownName}, stats.Dropped[1])
	assert.True(t, errors.Is(stats.Dropped[2], ErrCrossKind))
	assert.Contains(t, stats.Dropped[2].Error(), "C -[superclass]-> I")

	assert.Empty(t, idx.SuperclassesOf("C"))
	assert.Equal(t, []string{"C"}, idx.ClassesImplementing("I"))
}

func TestBuild_Cycle(t *testing.T) {
	_, err := Build(context.Background(), []facts.Fact{
		{Name: "A", Superclasses: []string{"B"}},
		{Name: "B", Superclasses: []string{"A"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrCycle)

	var cycleErr *graph.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"A", "B"}, cycleErr.Names)
}

func TestBuild_Errors(t *testing.T) {
	t.Run("kind conflict", func(t *testing.T) {
		_, err := Build(context.Background(), []facts.Fact{
			{Name: "X", Kind: graph.KindInterface},
			{Name: "X", Kind: graph.KindAnnotation},
		})
		assert.ErrorIs(t, err, facts.ErrKindConflict)
	})

	t.Run("max nodes", func(t *testing.T) {
		_, err := Build(context.Background(), []facts.Fact{{Name: "A"}, {Name: "B"}}, WithMaxNodes(1))
		assert.ErrorIs(t, err, graph.ErrMaxNodesExceeded)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Build(ctx, scenarioFacts())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBuild_MergeAuxiliary(t *testing.T) {
	in := []facts.Fact{
		{Name: "Trait", Kind: graph.KindInterface},
		{Name: "Impl", Interfaces: []string{"Trait$class"}},
		{Name: "Trait$class", Kind: graph.KindStandard},
	}

	idx := mustBuild(t, in, WithMergeAuxiliary(true))
	assert.Equal(t, []string{"Impl"}, idx.ClassesImplementing("Trait"))
	assert.Equal(t, 1, idx.Stats().Normalized.AuxiliaryMerged)

	idx = mustBuild(t, in)
	assert.Empty(t, idx.ClassesImplementing("Trait"))
}

func TestIndex_QueriesComputeOnce(t *testing.T) {
	idx := mustBuild(t, scenarioFacts())

	for i := 0; i < 3; i++ {
		idx.ClassesImplementing("Pet")
		idx.ClassesImplementing("Nope")
		idx.SubclassesOf("Animal")
		idx.AnnotationsOn("Dog")
		idx.AllNames()
	}

	stats := idx.CacheStats()
	assert.Equal(t, int64(1), stats[QueryClassesImplementing].Computations)
	assert.Equal(t, int64(1), stats[QuerySubclasses].Computations)
	assert.Equal(t, int64(1), stats[QueryAnnotationsOn].Computations)
	assert.Equal(t, int64(1), stats[QueryAllNames].Computations)
	assert.Equal(t, int64(3), stats[QueryClassesImplementing].Misses)
	assert.Zero(t, stats[QueryMetaAnnotationsOn].Computations)
}

func TestIndex_Warm(t *testing.T) {
	idx := mustBuild(t, scenarioFacts())
	idx.Warm()

	stats := idx.CacheStats()
	assert.Equal(t, int64(1), stats[QueryClassesImplementing].Computations)
	assert.Equal(t, int64(1), stats[QueryInterfacesImplementedBy].Computations)
	assert.Equal(t, int64(1), stats[QueryAnnotationsOn].Computations)
	assert.Equal(t, int64(1), stats[QueryMetaAnnotationsOn].Computations)
	assert.Zero(t, stats[QuerySubclasses].Computations, "per-name queries stay lazy")
}

// x ∈ ClassesWithAnnotation(a) ⇔ a ∈ AnnotationsOn(x), and the same for the
// meta-annotation and implementation pairs.
func TestIndex_InversionLaw(t *testing.T) {
	var in []facts.Fact
	for i := 0; i < 6; i++ {
		f := facts.Fact{Name: fmt.Sprintf("Ann%d", i), Kind: graph.KindAnnotation}
		if i > 0 {
			f.Annotations = []string{fmt.Sprintf("Ann%d", (i-1)/2)}
		}
		in = append(in, f)
	}
	for i := 0; i < 4; i++ {
		f := facts.Fact{Name: fmt.Sprintf("Iface%d", i), Kind: graph.KindInterface}
		if i > 0 {
			f.Interfaces = []string{fmt.Sprintf("Iface%d", i-1)}
		}
		in = append(in, f)
	}
	for i := 0; i < 10; i++ {
		f := facts.Fact{
			Name:        fmt.Sprintf("Class%d", i),
			Annotations: []string{fmt.Sprintf("Ann%d", i%6)},
			Interfaces:  []string{fmt.Sprintf("Iface%d", i%4)},
		}
		if i > 0 && i%3 != 0 {
			f.Superclasses = []string{fmt.Sprintf("Class%d", i-1)}
		}
		in = append(in, f)
	}
	idx := mustBuild(t, in)

	for _, a := range idx.AnnotationNames() {
		for _, x := range idx.ClassesWithAnnotation(a) {
			assert.Contains(t, idx.AnnotationsOn(x), a)
		}
		for _, sub := range idx.AnnotationsWithMetaAnnotation(a) {
			assert.Contains(t, idx.MetaAnnotationsOn(sub), a)
		}
	}
	for _, x := range idx.AllNames() {
		for _, a := range idx.AnnotationsOn(x) {
			assert.Contains(t, idx.ClassesWithAnnotation(a), x)
		}
	}
	for _, i := range idx.InterfaceNames() {
		for _, c := range idx.ClassesImplementing(i) {
			assert.Contains(t, idx.InterfacesImplementedBy(c), i)
		}
	}
	for _, c := range idx.StandardClassNames() {
		for _, i := range idx.InterfacesImplementedBy(c) {
			assert.Contains(t, idx.ClassesImplementing(i), c)
		}
		for _, s := range idx.SuperclassesOf(c) {
			assert.Contains(t, idx.SubclassesOf(s), c)
		}
	}
	for _, a := range idx.AnnotationNames() {
		assert.Equal(t, idx.MetaAnnotationsOn(a), superAnnotations(idx, a), a)
	}
}

// superAnnotations reads the ancestor set straight from the graph.
func superAnnotations(idx *Index, name string) []string {
	n, _ := idx.Graph().Lookup(name)
	ids, _ := idx.Graph().Ancestors(n.ID)
	names := idx.Graph().Names(ids)
	sort.Strings(names)
	return names
}

func TestIndex_ConcurrentQueries(t *testing.T) {
	idx := mustBuild(t, metaScenarioFacts())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, []string{"Dog"}, idx.ClassesImplementing("Pet"))
			assert.Equal(t, []string{"Deprecated", "Meta"}, idx.AnnotationsOn("Dog"))
		}()
	}
	wg.Wait()

	stats := idx.CacheStats()
	assert.Equal(t, int64(1), stats[QueryClassesImplementing].Computations)
	assert.Equal(t, int64(1), stats[QueryAnnotationsOn].Computations)
}

func TestIndex_Run(t *testing.T) {
	idx := mustBuild(t, scenarioFacts())
	ctx := context.Background()

	got, err := idx.Run(ctx, QuerySubclasses, "Animal")
	require.NoError(t, err)
	assert.Equal(t, []string{"Dog"}, got)

	got, err = idx.Run(ctx, QueryInterfaces, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Pet"}, got)

	_, err = idx.Run(ctx, Query("bogus"), "x")
	assert.ErrorIs(t, err, ErrUnknownQuery)

	_, err = idx.Run(ctx, QueryAnnotationsOn, "")
	assert.ErrorIs(t, err, ErrMissingArgument)

	assert.Len(t, Queries(), 14)
	assert.True(t, QueryMetaAnnotationsOn.NeedsName())
	assert.False(t, QueryAllNames.NeedsName())
	assert.False(t, Query("bogus").Valid())
}

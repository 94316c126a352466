// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// buildGraph creates nodes for every name in edges (parent, child pairs) of kind.
func buildGraph(t *testing.T, kind Kind, edges [][2]string) *Graph {
	t.Helper()
	g := NewGraph()
	ids := make(map[string]NodeID)
	get := func(name string) NodeID {
		if id, ok := ids[name]; ok {
			return id
		}
		id := mustAdd(t, g, name, kind)
		ids[name] = id
		return id
	}
	for _, e := range edges {
		p, c := get(e[0]), get(e[1])
		if err := g.AddChild(p, c); err != nil {
			t.Fatalf("AddChild(%s, %s) failed: %v", e[0], e[1], err)
		}
	}
	return g
}

func ancestorNames(t *testing.T, g *Graph, name string) []string {
	t.Helper()
	n, ok := g.Lookup(name)
	if !ok {
		t.Fatalf("node %q not found", name)
	}
	ids, err := g.Ancestors(n.ID)
	if err != nil {
		t.Fatalf("Ancestors(%s) failed: %v", name, err)
	}
	return g.Names(ids)
}

func descendantNames(t *testing.T, g *Graph, name string) []string {
	t.Helper()
	n, ok := g.Lookup(name)
	if !ok {
		t.Fatalf("node %q not found", name)
	}
	ids, err := g.Descendants(n.ID)
	if err != nil {
		t.Fatalf("Descendants(%s) failed: %v", name, err)
	}
	return g.Names(ids)
}

func TestClose_Chain(t *testing.T) {
	g := buildGraph(t, KindStandard, [][2]string{
		{"Animal", "Mammal"},
		{"Mammal", "Dog"},
	})
	if err := g.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := ancestorNames(t, g, "Dog"); !reflect.DeepEqual(got, []string{"Animal", "Mammal"}) {
		t.Errorf("Ancestors(Dog) = %v", got)
	}
	if got := descendantNames(t, g, "Animal"); !reflect.DeepEqual(got, []string{"Mammal", "Dog"}) {
		t.Errorf("Descendants(Animal) = %v", got)
	}
	if got := ancestorNames(t, g, "Animal"); len(got) != 0 {
		t.Errorf("Ancestors(Animal) = %v, expected empty", got)
	}
}

func TestClose_Diamond(t *testing.T) {
	g := buildGraph(t, KindInterface, [][2]string{
		{"Top", "Left"},
		{"Top", "Right"},
		{"Left", "Bottom"},
		{"Right", "Bottom"},
	})
	if err := g.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := ancestorNames(t, g, "Bottom"); !reflect.DeepEqual(got, []string{"Top", "Left", "Right"}) {
		t.Errorf("Ancestors(Bottom) = %v", got)
	}
	if got := descendantNames(t, g, "Top"); !reflect.DeepEqual(got, []string{"Left", "Right", "Bottom"}) {
		t.Errorf("Descendants(Top) = %v", got)
	}
}

func TestClose_Forest(t *testing.T) {
	g := buildGraph(t, KindStandard, [][2]string{
		{"A", "A1"},
		{"B", "B1"},
		{"B1", "B2"},
	})
	mustAdd(t, g, "Lonely", KindStandard)
	if err := g.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := descendantNames(t, g, "A"); !reflect.DeepEqual(got, []string{"A1"}) {
		t.Errorf("Descendants(A) = %v", got)
	}
	if got := ancestorNames(t, g, "B2"); !reflect.DeepEqual(got, []string{"B", "B1"}) {
		t.Errorf("Ancestors(B2) = %v", got)
	}
	if got := ancestorNames(t, g, "Lonely"); len(got) != 0 {
		t.Errorf("Ancestors(Lonely) = %v", got)
	}
}

// Every a in Ancestors(x) must have x in Descendants(a), and the node itself
// never appears in its own closure.
func TestClose_Symmetry(t *testing.T) {
	var edges [][2]string
	for i := 0; i < 30; i++ {
		for j := i + 1; j < 30; j++ {
			if (i*7+j*3)%5 == 0 {
				edges = append(edges, [2]string{fmt.Sprintf("N%02d", i), fmt.Sprintf("N%02d", j)})
			}
		}
	}
	g := buildGraph(t, KindStandard, edges)
	if err := g.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for id := NodeID(0); int(id) < g.NodeCount(); id++ {
		ancestors, _ := g.Ancestors(id)
		for _, a := range ancestors {
			if a == id {
				t.Fatalf("%s is its own ancestor", g.Name(id))
			}
			descendants, _ := g.Descendants(a)
			if !containsID(descendants, id) {
				t.Errorf("%s in Ancestors(%s) but not symmetric", g.Name(a), g.Name(id))
			}
		}
		descendants, _ := g.Descendants(id)
		if containsID(descendants, id) {
			t.Fatalf("%s is its own descendant", g.Name(id))
		}
		for i := 1; i < len(descendants); i++ {
			if descendants[i-1] >= descendants[i] {
				t.Fatalf("Descendants(%s) not sorted or not unique: %v", g.Name(id), descendants)
			}
		}
	}
}

func TestClose_CrossLinksNotTraversed(t *testing.T) {
	g := NewGraph()
	c := mustAdd(t, g, "C", KindStandard)
	sub := mustAdd(t, g, "Sub", KindStandard)
	i := mustAdd(t, g, "I", KindInterface)
	if err := g.AddChild(c, sub); err != nil {
		t.Fatal(err)
	}
	if err := g.AddCrossLink(c, i); err != nil {
		t.Fatal(err)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := descendantNames(t, g, "C"); !reflect.DeepEqual(got, []string{"Sub"}) {
		t.Errorf("Descendants(C) = %v", got)
	}
	if got := ancestorNames(t, g, "I"); len(got) != 0 {
		t.Errorf("Ancestors(I) = %v", got)
	}
}

func TestClose_Cycle(t *testing.T) {
	g := buildGraph(t, KindStandard, [][2]string{
		{"Root", "A"},
		{"A", "B"},
		{"B", "C"},
		{"C", "A"},
		{"C", "Leaf"},
	})

	err := g.Close()
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}

	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if cycleErr.Kind != KindStandard {
		t.Errorf("Kind = %v, expected standard", cycleErr.Kind)
	}
	if !reflect.DeepEqual(cycleErr.Names, []string{"A", "B", "C", "Leaf"}) {
		t.Errorf("Names = %v", cycleErr.Names)
	}
	if g.IsClosed() {
		t.Error("graph must stay in building state after a cycle")
	}
}

func TestCycleError_Truncates(t *testing.T) {
	names := make([]string, 15)
	for i := range names {
		names[i] = fmt.Sprintf("T%02d", i)
	}
	err := &CycleError{Kind: KindAnnotation, Names: names}
	msg := err.Error()
	if !strings.Contains(msg, "T09") || strings.Contains(msg, "T10") {
		t.Errorf("unexpected truncation: %s", msg)
	}
	if !strings.Contains(msg, "(5 more)") {
		t.Errorf("expected remaining count in %q", msg)
	}
}

func containsID(ids []NodeID, id NodeID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

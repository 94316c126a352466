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
	"fmt"
	"sort"
	"strings"
)

// maxCycleNames caps the names listed in a CycleError message.
const maxCycleNames = 10

// CycleError reports nodes of one kind that could not be ordered because
// they sit on, or below, a cycle of direct edges.
type CycleError struct {
	// Kind is the entity kind whose DAG is cyclic.
	Kind Kind

	// Names are the unordered node names, sorted.
	Names []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	names := e.Names
	suffix := ""
	if len(names) > maxCycleNames {
		suffix = fmt.Sprintf(", ... (%d more)", len(names)-maxCycleNames)
		names = names[:maxCycleNames]
	}
	return fmt.Sprintf("%v: %s nodes [%s%s]", ErrCycle, e.Kind, strings.Join(names, ", "), suffix)
}

// Unwrap returns ErrCycle for errors.Is support.
func (e *CycleError) Unwrap() error {
	return ErrCycle
}

// closeKind computes ancestors and descendants for every node of kind.
//
// Description:
//
//	Orders the nodes of kind topologically (Kahn) over direct edges whose
//	endpoints are both of kind. Ancestors are accumulated in topological
//	order, each node reusing its parents' finished sets; descendants are
//	accumulated in reverse order from children. A node reachable through
//	several paths (diamond) is recorded once.
//
// Complexity:
//
//	O(V + E + sum over edges of the reused closure size).
//
// Errors:
//
//	*CycleError - some nodes of kind could not be ordered.
func (g *Graph) closeKind(kind Kind) error {
	members := g.byKind[kind]
	if len(members) == 0 {
		return nil
	}

	inDegree := make(map[NodeID]int, len(members))
	for _, id := range members {
		n := g.nodes[id]
		deg := 0
		for _, p := range n.parents {
			if g.nodes[p].Kind == kind {
				deg++
			}
		}
		inDegree[id] = deg
	}

	order := make([]NodeID, 0, len(members))
	for _, id := range members {
		if inDegree[id] == 0 {
			order = append(order, id)
		}
	}
	for i := 0; i < len(order); i++ {
		for _, c := range g.nodes[order[i]].children {
			if g.nodes[c].Kind != kind {
				continue
			}
			inDegree[c]--
			if inDegree[c] == 0 {
				order = append(order, c)
			}
		}
	}

	if len(order) != len(members) {
		var names []string
		for id, deg := range inDegree {
			if deg > 0 {
				names = append(names, g.nodes[id].Name)
			}
		}
		sort.Strings(names)
		return &CycleError{Kind: kind, Names: names}
	}

	ancestors := make(map[NodeID]map[NodeID]struct{}, len(order))
	for _, id := range order {
		set := make(map[NodeID]struct{})
		for _, p := range g.nodes[id].parents {
			if g.nodes[p].Kind != kind {
				continue
			}
			set[p] = struct{}{}
			for a := range ancestors[p] {
				set[a] = struct{}{}
			}
		}
		ancestors[id] = set
		g.nodes[id].ancestors = sortedIDs(set)
	}

	descendants := make(map[NodeID]map[NodeID]struct{}, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		set := make(map[NodeID]struct{})
		for _, c := range g.nodes[id].children {
			if g.nodes[c].Kind != kind {
				continue
			}
			set[c] = struct{}{}
			for d := range descendants[c] {
				set[d] = struct{}{}
			}
		}
		descendants[id] = set
		g.nodes[id].descendants = sortedIDs(set)
	}

	return nil
}

func sortedIDs(set map[NodeID]struct{}) []NodeID {
	out := make([]NodeID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

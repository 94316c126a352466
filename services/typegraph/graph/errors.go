// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the type-relationship DAG: a node arena with direct
// parent/child edges, cross-links, and per-kind transitive closure.
//
// # Node Kinds
//
// Every node belongs to exactly one entity kind (standard type, interface,
// annotation) fixed when it is created. Direct edges form one DAG per kind;
// cross-links (implements, annotated-by) connect nodes regardless of kind and
// are never traversed by the closure.
//
// # Thread Safety
//
// Graph is NOT safe for concurrent use during building. It is designed for:
//   - Single-writer access while adding nodes and edges
//   - Read-only access after Close() succeeds
//
// After Close(), the graph can be safely read from multiple goroutines.
//
// # Lifecycle
//
//  1. Create with NewGraph()
//  2. Add nodes with AddNode(), then edges with AddChild() and AddCrossLink()
//  3. Call Close() to compute closures and freeze the graph
//  4. Query nodes, ancestors and descendants
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrGraphFrozen is returned when attempting to modify a closed graph.
	ErrGraphFrozen = errors.New("graph is frozen and cannot be modified")

	// ErrNodeNotFound is returned when an edge references a node ID that
	// is not part of the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode is returned when adding a node whose name already exists.
	ErrDuplicateNode = errors.New("duplicate node name")

	// ErrInvalidNode is returned for an empty name or an unknown kind.
	ErrInvalidNode = errors.New("invalid node")

	// ErrMaxNodesExceeded is returned when the graph has reached its
	// configured maximum node capacity.
	ErrMaxNodesExceeded = errors.New("maximum node count exceeded")

	// ErrCycle is returned when the direct edges of one kind contain a cycle.
	ErrCycle = errors.New("cycle in direct edges")

	// ErrNotClosed is returned when closure data is requested before Close().
	ErrNotClosed = errors.New("graph closure not computed")
)

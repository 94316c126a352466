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
	"strings"
	"time"
)

// DefaultMaxNodes is the default maximum number of nodes a graph can hold.
const DefaultMaxNodes = 2_000_000

// GraphState represents the lifecycle state of the graph.
type GraphState int

const (
	// GraphStateBuilding indicates the graph is accepting nodes and edges.
	GraphStateBuilding GraphState = iota

	// GraphStateClosed indicates closures are computed and the graph is read-only.
	GraphStateClosed
)

// String returns the string representation of the GraphState.
func (s GraphState) String() string {
	switch s {
	case GraphStateBuilding:
		return "building"
	case GraphStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Kind is the entity kind of a node.
type Kind int

const (
	// KindUnspecified is the zero value. Nodes cannot have it; fact
	// normalization resolves it to KindStandard.
	KindUnspecified Kind = iota

	// KindStandard is a standard (non-interface, non-annotation) type.
	KindStandard

	// KindInterface is an interface type.
	KindInterface

	// KindAnnotation is an annotation type.
	KindAnnotation
)

// Kinds lists the node kinds in their canonical order.
var Kinds = []Kind{KindStandard, KindInterface, KindAnnotation}

var kindNames = map[Kind]string{
	KindUnspecified: "",
	KindStandard:    "standard",
	KindInterface:   "interface",
	KindAnnotation:  "annotation",
}

// String returns the string representation of the Kind.
func (k Kind) String() string {
	if k == KindUnspecified {
		return "unspecified"
	}
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether k is one of the node kinds.
func (k Kind) Valid() bool {
	return k == KindStandard || k == KindInterface || k == KindAnnotation
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown kind %d", int(k))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Matching is
// case-insensitive; "class" is accepted for KindStandard.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind parses a kind name. The empty string yields KindUnspecified.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return KindUnspecified, nil
	case "standard", "class":
		return KindStandard, nil
	case "interface":
		return KindInterface, nil
	case "annotation":
		return KindAnnotation, nil
	default:
		return KindUnspecified, fmt.Errorf("unknown kind %q", s)
	}
}

// NodeID is the stable arena index of a node.
type NodeID int32

// Node is a named entity with its direct edges, cross-links and closure.
//
// Edge lists are ordered sets: insertion order, no duplicates. Ancestors and
// descendants exclude the node itself and are sorted by NodeID. Slices
// returned by accessors are owned by the graph and MUST NOT be modified.
type Node struct {
	// ID is the arena index.
	ID NodeID

	// Name is the unique entity name.
	Name string

	// Kind is fixed at creation.
	Kind Kind

	parents     []NodeID
	children    []NodeID
	crossLinks  []NodeID
	ancestors   []NodeID
	descendants []NodeID
}

// Parents returns the direct parents (superclass, superinterface,
// meta-annotation).
func (n *Node) Parents() []NodeID { return n.parents }

// Children returns the direct children.
func (n *Node) Children() []NodeID { return n.children }

// CrossLinks returns the cross-linked nodes. For a standard type these are
// its implemented interfaces; for an annotation, the entities it annotates.
func (n *Node) CrossLinks() []NodeID { return n.crossLinks }

// Ancestors returns every node reachable through parents, excluding n.
func (n *Node) Ancestors() []NodeID { return n.ancestors }

// Descendants returns every node reachable through children, excluding n.
func (n *Node) Descendants() []NodeID { return n.descendants }

// GraphOptions configures Graph behavior and limits.
type GraphOptions struct {
	// MaxNodes is the maximum number of nodes the graph can hold.
	// Default: 2,000,000
	MaxNodes int
}

// DefaultGraphOptions returns sensible defaults for graph configuration.
func DefaultGraphOptions() GraphOptions {
	return GraphOptions{MaxNodes: DefaultMaxNodes}
}

// GraphOption is a functional option for configuring Graph.
type GraphOption func(*GraphOptions)

// WithMaxNodes sets the maximum number of nodes the graph can hold.
func WithMaxNodes(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxNodes = n
	}
}

// Graph is an arena of nodes forming one DAG per kind.
//
// Thread Safety:
//
//	NOT safe for concurrent use while building. After Close() returns
//	nil the graph is immutable and safe for concurrent reads.
type Graph struct {
	nodes  []*Node
	byName map[string]NodeID
	byKind map[Kind][]NodeID

	directEdges int
	crossLinks  int

	state   GraphState
	options GraphOptions

	// ClosedAtMilli is the Unix timestamp in milliseconds when Close()
	// succeeded. Zero while building.
	ClosedAtMilli int64
}

// NewGraph creates an empty graph in the building state.
//
// Example:
//
//	g := NewGraph(WithMaxNodes(100_000))
//	animal, _ := g.AddNode("Animal", KindStandard)
//	dog, _ := g.AddNode("Dog", KindStandard)
//	_ = g.AddChild(animal, dog)
//	if err := g.Close(); err != nil {
//	    return err
//	}
func NewGraph(opts ...GraphOption) *Graph {
	options := DefaultGraphOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Graph{
		nodes:   make([]*Node, 0),
		byName:  make(map[string]NodeID),
		byKind:  make(map[Kind][]NodeID),
		state:   GraphStateBuilding,
		options: options,
	}
}

// State returns the current lifecycle state of the graph.
func (g *Graph) State() GraphState {
	return g.state
}

// IsClosed returns true once closures are computed.
func (g *Graph) IsClosed() bool {
	return g.state == GraphStateClosed
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// DirectEdgeCount returns the number of distinct parent/child edges.
func (g *Graph) DirectEdgeCount() int {
	return g.directEdges
}

// CrossLinkCount returns the number of distinct cross-links.
func (g *Graph) CrossLinkCount() int {
	return g.crossLinks
}

// AddNode creates a node for name with the given kind.
//
// Outputs:
//
//	NodeID - The ID of the new node.
//	error - Non-nil if the graph is closed, full, or the node is invalid.
//
// Errors:
//
//	ErrGraphFrozen - Graph has been closed
//	ErrInvalidNode - Empty name or kind outside Kinds
//	ErrDuplicateNode - Name already present
//	ErrMaxNodesExceeded - Graph is at node capacity
func (g *Graph) AddNode(name string, kind Kind) (NodeID, error) {
	if g.state == GraphStateClosed {
		return 0, ErrGraphFrozen
	}
	if name == "" {
		return 0, fmt.Errorf("%w: empty name", ErrInvalidNode)
	}
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %s has kind %s", ErrInvalidNode, name, kind)
	}
	if len(g.nodes) >= g.options.MaxNodes {
		return 0, ErrMaxNodesExceeded
	}
	if _, exists := g.byName[name]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateNode, name)
	}

	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, &Node{ID: id, Name: name, Kind: kind})
	g.byName[name] = id
	g.byKind[kind] = append(g.byKind[kind], id)
	return id, nil
}

// Lookup returns the node with the given name.
func (g *Graph) Lookup(name string) (*Node, bool) {
	id, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return g.nodes[id], true
}

// Node returns the node with the given ID, or nil if out of range.
func (g *Graph) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Name returns the name of the node with the given ID.
func (g *Graph) Name(id NodeID) string {
	if n := g.Node(id); n != nil {
		return n.Name
	}
	return ""
}

// Names maps IDs to names, preserving order.
func (g *Graph) Names(ids []NodeID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.nodes[id].Name)
	}
	return out
}

// NodesOfKind returns the IDs of every node of kind in creation order.
// The slice is owned by the graph and MUST NOT be modified.
func (g *Graph) NodesOfKind(kind Kind) []NodeID {
	return g.byKind[kind]
}

// AddChild adds a direct parent→child edge.
//
// Description:
//
//	Used for superclass→subclass, superinterface→subinterface and
//	meta-annotation→annotation. Adding an existing edge is a no-op.
//
// Errors:
//
//	ErrGraphFrozen - Graph has been closed
//	ErrNodeNotFound - parent or child is not in the graph
func (g *Graph) AddChild(parent, child NodeID) error {
	p, c, err := g.endpoints(parent, child)
	if err != nil {
		return err
	}
	if appendUnique(&p.children, child) {
		c.parents = append(c.parents, parent)
		g.directEdges++
	}
	return nil
}

// AddCrossLink adds a cross-link from→to.
//
// Description:
//
//	Used for class→implemented interface and annotation→annotated entity.
//	Cross-links are never traversed by the closure. Adding an existing
//	cross-link is a no-op.
//
// Errors:
//
//	ErrGraphFrozen - Graph has been closed
//	ErrNodeNotFound - from or to is not in the graph
func (g *Graph) AddCrossLink(from, to NodeID) error {
	f, _, err := g.endpoints(from, to)
	if err != nil {
		return err
	}
	if appendUnique(&f.crossLinks, to) {
		g.crossLinks++
	}
	return nil
}

// Close computes the transitive closure of every kind and freezes the graph.
//
// Description:
//
//	Runs the closure once per kind. On success the graph becomes
//	read-only and ClosedAtMilli is set. Calling Close on a closed graph
//	is a no-op.
//
// Errors:
//
//	*CycleError - the direct edges of some kind contain a cycle. The
//	graph stays in the building state.
func (g *Graph) Close() error {
	if g.state == GraphStateClosed {
		return nil
	}
	for _, kind := range Kinds {
		if err := g.closeKind(kind); err != nil {
			return err
		}
	}
	g.state = GraphStateClosed
	g.ClosedAtMilli = time.Now().UnixMilli()
	return nil
}

// Ancestors returns the ancestor IDs of id.
//
// Errors:
//
//	ErrNotClosed - Close() has not succeeded yet
//	ErrNodeNotFound - id is not in the graph
func (g *Graph) Ancestors(id NodeID) ([]NodeID, error) {
	n, err := g.closedNode(id)
	if err != nil {
		return nil, err
	}
	return n.ancestors, nil
}

// Descendants returns the descendant IDs of id.
//
// Errors:
//
//	ErrNotClosed - Close() has not succeeded yet
//	ErrNodeNotFound - id is not in the graph
func (g *Graph) Descendants(id NodeID) ([]NodeID, error) {
	n, err := g.closedNode(id)
	if err != nil {
		return nil, err
	}
	return n.descendants, nil
}

func (g *Graph) closedNode(id NodeID) (*Node, error) {
	if g.state != GraphStateClosed {
		return nil, ErrNotClosed
	}
	n := g.Node(id)
	if n == nil {
		return nil, fmt.Errorf("%w: id %d", ErrNodeNotFound, id)
	}
	return n, nil
}

func (g *Graph) endpoints(a, b NodeID) (*Node, *Node, error) {
	if g.state == GraphStateClosed {
		return nil, nil, ErrGraphFrozen
	}
	na, nb := g.Node(a), g.Node(b)
	if na == nil {
		return nil, nil, fmt.Errorf("%w: id %d", ErrNodeNotFound, a)
	}
	if nb == nil {
		return nil, nil, fmt.Errorf("%w: id %d", ErrNodeNotFound, b)
	}
	return na, nb, nil
}

// appendUnique appends id unless present. Lists are short (direct edges), so
// a linear scan is used.
func appendUnique(list *[]NodeID, id NodeID) bool {
	for _, existing := range *list {
		if existing == id {
			return false
		}
	}
	*list = append(*list, id)
	return true
}

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
	"errors"
	"fmt"

	"github.com/AleutianAI/typegraph/services/typegraph/facts"
)

// Sentinel errors for index building and querying.
var (
	// ErrUnknownName is the reason recorded for a relation naming an entity
	// that is not in the fact set. It is never returned by Build.
	ErrUnknownName = errors.New("unknown entity name")

	// ErrCrossKind is the reason recorded for a relation whose target kind
	// cannot take part in it. It is never returned by Build.
	ErrCrossKind = errors.New("relation target has the wrong kind")

	// ErrIgnoredRelation is the reason recorded for a relation that has no
	// meaning for the source kind (an annotation implementing an interface).
	ErrIgnoredRelation = errors.New("relation ignored for entity kind")

	// ErrUnknownQuery is returned by Query for an unsupported query name.
	ErrUnknownQuery = errors.New("unknown query")

	// ErrMissingArgument is returned by Query when a name is required.
	ErrMissingArgument = errors.New("query requires an entity name")
)

// Relation names the kind of fact relation an edge came from.
type Relation string

const (
	// RelationSuperclass is a declared superclass.
	RelationSuperclass Relation = "superclass"

	// RelationInterface is an implemented interface or superinterface.
	RelationInterface Relation = "interface"

	// RelationAnnotation is an annotation or meta-annotation.
	RelationAnnotation Relation = "annotation"
)

// MaxDroppedRecorded caps the dropped relations kept in BuildStats.
const MaxDroppedRecorded = 100

// DroppedRelation describes a relation that was not wired into the graph.
type DroppedRelation struct {
	// From is the entity declaring the relation.
	From string `json:"from"`

	// To is the referenced entity.
	To string `json:"to"`

	// Relation is the fact field the relation came from.
	Relation Relation `json:"relation"`

	// Err is the reason: ErrUnknownName, ErrCrossKind or ErrIgnoredRelation.
	Err error `json:"-"`
}

// Error implements the error interface.
func (d DroppedRelation) Error() string {
	return fmt.Sprintf("relation %s -[%s]-> %s: %v", d.From, d.Relation, d.To, d.Err)
}

// Unwrap returns the underlying reason for errors.Is support.
func (d DroppedRelation) Unwrap() error {
	return d.Err
}

// BuildStats contains statistics about a build operation.
type BuildStats struct {
	// Facts is the number of facts after normalization.
	Facts int `json:"facts"`

	// NodesCreated is the number of nodes added to the graph.
	NodesCreated int `json:"nodes_created"`

	// DirectEdges is the number of parent/child edges.
	DirectEdges int `json:"direct_edges"`

	// CrossLinks is the number of cross-links.
	CrossLinks int `json:"cross_links"`

	// UnknownReferences counts relations dropped because the target name
	// is not in the fact set.
	UnknownReferences int `json:"unknown_references"`

	// CrossKindEdges counts relations dropped because the target kind does
	// not match.
	CrossKindEdges int `json:"cross_kind_edges"`

	// IgnoredRelations counts relations with no meaning for the source kind.
	IgnoredRelations int `json:"ignored_relations"`

	// Normalized holds the fact normalization counters.
	Normalized facts.NormalizeStats `json:"normalized"`

	// Dropped lists the first MaxDroppedRecorded dropped relations.
	Dropped []DroppedRelation `json:"-"`

	// DurationMicro is the total build time in microseconds.
	DurationMicro int64 `json:"duration_micro"`
}

// DroppedTotal returns the number of relations not wired into the graph.
func (s BuildStats) DroppedTotal() int {
	return s.UnknownReferences + s.CrossKindEdges + s.IgnoredRelations
}

func (s *BuildStats) drop(from, to string, rel Relation, reason error) {
	switch {
	case errors.Is(reason, ErrUnknownName):
		s.UnknownReferences++
	case errors.Is(reason, ErrCrossKind):
		s.CrossKindEdges++
	default:
		s.IgnoredRelations++
	}
	if len(s.Dropped) < MaxDroppedRecorded {
		s.Dropped = append(s.Dropped, DroppedRelation{From: from, To: to, Relation: rel, Err: reason})
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package facts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/typegraph/services/typegraph/graph"
)

// Auxiliary type suffixes generated by JVM-language compilers for a type Foo
// (companion objects "Foo$", trait implementation classes "Foo$class").
var auxSuffixes = []string{"$class", "$"}

// NormalizeOptions configures Normalize.
type NormalizeOptions struct {
	// MergeAuxiliary folds auxiliary types ("Foo$", "Foo$class") into their
	// base type "Foo", rewriting every reference to them.
	MergeAuxiliary bool
}

// NormalizeStats reports what Normalize changed.
type NormalizeStats struct {
	// InputFacts is the number of facts given to Normalize.
	InputFacts int `json:"input_facts"`

	// MergedFacts counts facts folded into an earlier fact of the same name.
	MergedFacts int `json:"merged_facts"`

	// AuxiliaryMerged counts auxiliary facts folded into their base type.
	AuxiliaryMerged int `json:"auxiliary_merged"`

	// SelfReferences counts relations pointing back at their own entity,
	// which are removed.
	SelfReferences int `json:"self_references"`

	// DuplicateRelations counts repeated relation names, which are removed.
	DuplicateRelations int `json:"duplicate_relations"`
}

// Normalize merges, cleans and orders facts.
//
// Description:
//
//	Facts sharing a name are merged: relations are unioned and kinds must
//	agree (an unspecified kind agrees with anything). With MergeAuxiliary,
//	auxiliary types contribute their relations to the base type without
//	taking part in the kind check, and references to them are rewritten to
//	the base name. Relations are deduplicated, self-references dropped and
//	the unspecified kind resolved to standard. Output is sorted by name;
//	relation lists keep first-seen order.
//
// Inputs:
//
//	in - Facts in any order. Not modified.
//	opts - Normalization options.
//
// Outputs:
//
//	[]Fact - Normalized facts, one per distinct name.
//	NormalizeStats - Counters for what changed.
//	error - Non-nil on an invalid fact or a kind conflict.
//
// Errors:
//
//	ErrInvalidFact - A fact failed validation
//	ErrKindConflict - Two facts with the same name declare different kinds
func Normalize(in []Fact, opts NormalizeOptions) ([]Fact, NormalizeStats, error) {
	stats := NormalizeStats{InputFacts: len(in)}

	rename := func(name string) string { return name }
	if opts.MergeAuxiliary {
		rename = baseName
	}

	type merged struct {
		fact    Fact
		hasBase bool
	}
	byName := make(map[string]*merged, len(in))

	for _, f := range in {
		if err := f.Validate(); err != nil {
			return nil, stats, err
		}

		name := rename(f.Name)
		isAux := name != f.Name

		m, exists := byName[name]
		if !exists {
			m = &merged{fact: Fact{Name: name}}
			byName[name] = m
		}
		switch {
		case isAux:
			stats.AuxiliaryMerged++
		case exists:
			stats.MergedFacts++
		}

		if !isAux {
			switch {
			case f.Kind == graph.KindUnspecified:
			case !m.hasBase || m.fact.Kind == graph.KindUnspecified:
				m.fact.Kind = f.Kind
			case m.fact.Kind != f.Kind:
				return nil, stats, fmt.Errorf("%w %q: %s and %s", ErrKindConflict, name, m.fact.Kind, f.Kind)
			}
			m.hasBase = true
		}

		m.fact.Superclasses = append(m.fact.Superclasses, renameAll(f.Superclasses, rename)...)
		m.fact.Interfaces = append(m.fact.Interfaces, renameAll(f.Interfaces, rename)...)
		m.fact.Annotations = append(m.fact.Annotations, renameAll(f.Annotations, rename)...)
	}

	out := make([]Fact, 0, len(byName))
	for _, m := range byName {
		f := m.fact
		if f.Kind == graph.KindUnspecified {
			f.Kind = graph.KindStandard
		}
		f.Superclasses = cleanRelations(f.Name, f.Superclasses, &stats)
		f.Interfaces = cleanRelations(f.Name, f.Interfaces, &stats)
		f.Annotations = cleanRelations(f.Name, f.Annotations, &stats)
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, stats, nil
}

// baseName strips an auxiliary suffix. A bare suffix ("$") is kept as is.
func baseName(name string) string {
	for _, suffix := range auxSuffixes {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

func renameAll(names []string, rename func(string) string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = rename(n)
	}
	return out
}

// cleanRelations removes duplicates and self-references, keeping first-seen
// order. Returns nil for an empty result.
func cleanRelations(self string, names []string, stats *NormalizeStats) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := names[:0:0]
	for _, n := range names {
		if n == self {
			stats.SelfReferences++
			continue
		}
		if _, dup := seen[n]; dup {
			stats.DuplicateRelations++
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

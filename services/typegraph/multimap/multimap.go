// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package multimap provides helpers for maps from a key to a set of values.
package multimap

import (
	"cmp"
	"slices"
)

// Set is an unordered set of values.
type Set[V comparable] map[V]struct{}

// NewSet returns a set holding the given values.
func NewSet[V comparable](values ...V) Set[V] {
	s := make(Set[V], len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Add inserts v. Adding an existing value is a no-op.
func (s Set[V]) Add(v V) {
	s[v] = struct{}{}
}

// Has reports whether v is in the set.
func (s Set[V]) Has(v V) bool {
	_, ok := s[v]
	return ok
}

// Insert adds value to the set stored under key, creating the set on first
// insert. Inserting a duplicate is a no-op.
func Insert[K, V comparable](m map[K]Set[V], key K, value V) {
	s, ok := m[key]
	if !ok {
		s = make(Set[V])
		m[key] = s
	}
	s[value] = struct{}{}
}

// Sorted returns the members of s in ascending order. The result is never nil.
func Sorted[V cmp.Ordered](s Set[V]) []V {
	out := make([]V, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// ToSorted converts a key-to-set mapping into a key-to-sorted-slice mapping.
// Keys holding an empty set map to an empty slice, not a missing key.
func ToSorted[K comparable, V cmp.Ordered](m map[K]Set[V]) map[K][]V {
	out := make(map[K][]V, len(m))
	for k, s := range m {
		out[k] = Sorted(s)
	}
	return out
}

// Invert transposes a key-to-set mapping restricted to universe.
//
// Description:
//
//	For each key in universe, lookup returns its set; every value v in that
//	set gains key in the result's set for v. Keys outside universe are never
//	consulted, so values reachable only through them do not appear.
//	lookup may be backed by a lazy per-key cache.
//
// Inputs:
//
//	universe - The keys to consider. Duplicates are harmless.
//	lookup - Returns the set for a key and whether the key exists.
//
// Outputs:
//
//	map[V]Set[K] - For each value, the set of universe keys whose set held it.
func Invert[K, V comparable](universe []K, lookup func(K) (Set[V], bool)) map[V]Set[K] {
	out := make(map[V]Set[K])
	for _, k := range universe {
		s, ok := lookup(k)
		if !ok {
			continue
		}
		for v := range s {
			Insert(out, v, k)
		}
	}
	return out
}

// InvertMap is Invert over a fully materialized map.
func InvertMap[K, V comparable](m map[K]Set[V], universe []K) map[V]Set[K] {
	return Invert(universe, func(k K) (Set[V], bool) {
		s, ok := m[k]
		return s, ok
	})
}

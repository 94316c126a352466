// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lazy

// Value is a single memoized value computed on first use.
//
// Thread Safety: Safe for concurrent use. compute runs at most once.
type Value[V any] struct {
	cache *Cache[struct{}, V]
}

// NewValue creates a Value backed by compute.
func NewValue[V any](compute func() V) *Value[V] {
	return &Value[V]{
		cache: NewPerKey(func(struct{}) (V, bool) {
			return compute(), true
		}),
	}
}

// Get returns the value, computing it on the first call.
func (v *Value[V]) Get() V {
	val, _ := v.cache.Get(struct{}{})
	return val
}

// Computed reports whether the value has been computed.
func (v *Value[V]) Computed() bool {
	return v.cache.State(struct{}{}) != StateNotComputed
}

// Stats returns the counters of the underlying cache.
func (v *Value[V]) Stats() Stats {
	return v.cache.Stats()
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lazy provides memoizing key/value caches that compute their
// contents on demand.
//
// A Cache runs in one of two modes chosen at construction:
//
//   - ModeBulk: the first access of any key runs a single population pass
//     that produces every entry. Later accesses never run it again, whether
//     they hit or miss.
//   - ModePerKey: each key runs its own generation step on first access. The
//     result is cached, including an explicit absent marker, so repeated
//     misses do not recompute.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Concurrent first accesses of the
// same uncomputed key (or of any key in bulk mode) perform exactly one
// computation and every caller observes the same result.
package lazy

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Mode selects how a Cache populates itself.
type Mode int

const (
	// ModePerKey computes each entry independently on first access.
	ModePerKey Mode = iota

	// ModeBulk computes every entry in one pass on the first access.
	ModeBulk
)

// String returns the string representation of the Mode.
func (m Mode) String() string {
	switch m {
	case ModePerKey:
		return "per_key"
	case ModeBulk:
		return "bulk"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// State describes whether an entry has been computed.
type State int

const (
	// StateNotComputed means no computation has covered the key yet.
	StateNotComputed State = iota

	// StatePresent means the key was computed and has a value.
	StatePresent

	// StateAbsent means the key was computed and has no value.
	StateAbsent
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case StateNotComputed:
		return "not_computed"
	case StatePresent:
		return "present"
	case StateAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

// Sentinel errors for cache construction.
var (
	// ErrMissingLoader is returned when the loader function required by the
	// configured mode is nil.
	ErrMissingLoader = errors.New("lazy: loader function required for mode")

	// ErrUnknownMode is returned for a Mode value outside the defined set.
	ErrUnknownMode = errors.New("lazy: unknown mode")
)

// PopulateFunc produces every entry of a bulk cache.
type PopulateFunc[K comparable, V any] func() map[K]V

// GenerateFunc produces the entry for a single key. The boolean reports
// whether the key has a value; false is cached as an absent entry.
type GenerateFunc[K comparable, V any] func(key K) (V, bool)

// Config configures a Cache.
type Config[K comparable, V any] struct {
	// Mode selects bulk or per-key population.
	Mode Mode

	// Populate is required for ModeBulk and ignored otherwise.
	Populate PopulateFunc[K, V]

	// Generate is required for ModePerKey and ignored otherwise.
	Generate GenerateFunc[K, V]
}

// Stats reports cache activity.
type Stats struct {
	// Mode is the cache's population mode.
	Mode Mode `json:"mode"`

	// Hits counts lookups that returned a value.
	Hits int64 `json:"hits"`

	// Misses counts lookups that returned no value.
	Misses int64 `json:"misses"`

	// Computations counts population passes (bulk) or generation
	// calls (per-key).
	Computations int64 `json:"computations"`
}

// entry is a single per-key slot. value and state are written inside once.
type entry[V any] struct {
	once  sync.Once
	value V
	state atomic.Int32
}

// Cache is a memoizing map from K to V.
//
// Thread Safety: All methods are safe for concurrent use.
type Cache[K comparable, V any] struct {
	mode     Mode
	populate PopulateFunc[K, V]
	generate GenerateFunc[K, V]

	bulkOnce  sync.Once
	bulk      map[K]V
	populated atomic.Bool

	mu      sync.Mutex
	entries map[K]*entry[V]

	hits         atomic.Int64
	misses       atomic.Int64
	computations atomic.Int64
}

// New creates a Cache from the given configuration.
//
// Errors:
//
//	ErrUnknownMode - cfg.Mode is not ModeBulk or ModePerKey
//	ErrMissingLoader - the loader for cfg.Mode is nil
func New[K comparable, V any](cfg Config[K, V]) (*Cache[K, V], error) {
	switch cfg.Mode {
	case ModeBulk:
		if cfg.Populate == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingLoader, cfg.Mode)
		}
	case ModePerKey:
		if cfg.Generate == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingLoader, cfg.Mode)
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(cfg.Mode))
	}

	return &Cache[K, V]{
		mode:     cfg.Mode,
		populate: cfg.Populate,
		generate: cfg.Generate,
		entries:  make(map[K]*entry[V]),
	}, nil
}

// NewBulk creates a bulk-mode cache. It panics if populate is nil.
func NewBulk[K comparable, V any](populate PopulateFunc[K, V]) *Cache[K, V] {
	c, err := New(Config[K, V]{Mode: ModeBulk, Populate: populate})
	if err != nil {
		panic(err)
	}
	return c
}

// NewPerKey creates a per-key cache. It panics if generate is nil.
func NewPerKey[K comparable, V any](generate GenerateFunc[K, V]) *Cache[K, V] {
	c, err := New(Config[K, V]{Mode: ModePerKey, Generate: generate})
	if err != nil {
		panic(err)
	}
	return c
}

// Mode returns the cache's population mode.
func (c *Cache[K, V]) Mode() Mode {
	return c.mode
}

// Get returns the value for key, computing it if needed.
//
// Outputs:
//
//	V - The cached value, or the zero value when absent.
//	bool - True if the key has a value.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var (
		v  V
		ok bool
	)
	if c.mode == ModeBulk {
		c.ensurePopulated()
		v, ok = c.bulk[key]
	} else {
		e := c.entryFor(key)
		e.once.Do(func() {
			c.computations.Add(1)
			e.value, ok = c.generate(key)
			if ok {
				e.state.Store(int32(StatePresent))
			} else {
				e.state.Store(int32(StateAbsent))
			}
		})
		v, ok = e.value, State(e.state.Load()) == StatePresent
	}

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// State reports whether key has been computed, without computing it.
func (c *Cache[K, V]) State(key K) State {
	if c.mode == ModeBulk {
		if !c.populated.Load() {
			return StateNotComputed
		}
		if _, ok := c.bulk[key]; ok {
			return StatePresent
		}
		return StateAbsent
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return StateNotComputed
	}
	return State(e.state.Load())
}

// Keys returns the keys that currently have a value, in no particular order.
//
// In bulk mode this triggers population. In per-key mode it lists only the
// keys computed so far.
func (c *Cache[K, V]) Keys() []K {
	if c.mode == ModeBulk {
		c.ensurePopulated()
		keys := make([]K, 0, len(c.bulk))
		for k := range c.bulk {
			keys = append(keys, k)
		}
		return keys
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, len(c.entries))
	for k, e := range c.entries {
		if State(e.state.Load()) == StatePresent {
			keys = append(keys, k)
		}
	}
	return keys
}

// Warm forces a bulk cache to populate. It is a no-op in per-key mode.
func (c *Cache[K, V]) Warm() {
	if c.mode == ModeBulk {
		c.ensurePopulated()
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Mode:         c.mode,
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Computations: c.computations.Load(),
	}
}

func (c *Cache[K, V]) ensurePopulated() {
	c.bulkOnce.Do(func() {
		c.computations.Add(1)
		m := c.populate()
		if m == nil {
			m = make(map[K]V)
		}
		c.bulk = m
		c.populated.Store(true)
	})
}

// entryFor returns the slot for key, creating it under the lock.
func (c *Cache[K, V]) entryFor(key K) *entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry[V]{}
		c.entries[key] = e
	}
	return e
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache keeps recently used type indices in memory.
//
// Building an index is cheap compared to loading its facts, but queries build
// lazy state worth keeping. IndexCache holds built indices keyed by snapshot
// ID, evicts the least recently used entry beyond MaxEntries, and
// deduplicates concurrent builds of the same snapshot.
package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/typegraph/services/typegraph/index"
)

// BuildFunc builds the index for a snapshot ID.
type BuildFunc func(ctx context.Context, id string) (*index.Index, error)

// ErrNilIndex is returned when a BuildFunc returns neither an index nor an error.
var ErrNilIndex = errors.New("build returned nil index")

// ErrBuildFailed is returned while a recent build failure is still cached.
type ErrBuildFailed struct {
	// ID is the snapshot whose build failed.
	ID string

	// Err is the original build error.
	Err error

	// RetryAt is when a new build will be attempted.
	RetryAt time.Time
}

// Error implements the error interface.
func (e *ErrBuildFailed) Error() string {
	return fmt.Sprintf("index build for %s failed (retry after %s): %v", e.ID, e.RetryAt.Format(time.RFC3339), e.Err)
}

// Unwrap returns the original build error.
func (e *ErrBuildFailed) Unwrap() error {
	return e.Err
}

// Options configures an IndexCache.
type Options struct {
	// MaxEntries is the maximum number of cached indices.
	// Default: 16
	MaxEntries int

	// MaxAge expires entries older than this. Zero disables expiry.
	// Default: 0
	MaxAge time.Duration

	// ErrorCacheTTL is how long a build failure is remembered.
	// Zero disables error caching. Default: 5s
	ErrorCacheTTL time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxEntries:    16,
		ErrorCacheTTL: 5 * time.Second,
	}
}

// Option is a functional option for configuring IndexCache.
type Option func(*Options)

// WithMaxEntries sets the maximum number of cached indices.
func WithMaxEntries(n int) Option {
	return func(o *Options) {
		o.MaxEntries = n
	}
}

// WithMaxAge sets the entry expiry.
func WithMaxAge(d time.Duration) Option {
	return func(o *Options) {
		o.MaxAge = d
	}
}

// WithErrorCacheTTL sets how long build failures are remembered.
func WithErrorCacheTTL(d time.Duration) Option {
	return func(o *Options) {
		o.ErrorCacheTTL = d
	}
}

// Stats contains cache counters.
type Stats struct {
	Entries    int   `json:"entries"`
	MaxEntries int   `json:"max_entries"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	Builds     int64 `json:"builds"`
	Errors     int64 `json:"errors"`
}

type entry struct {
	id         string
	idx        *index.Index
	builtAt    time.Time
	lruElement *list.Element
}

type failedBuild struct {
	err     error
	retryAt time.Time
}

// IndexCache is an LRU cache of built indices.
//
// Thread Safety: Safe for concurrent use.
type IndexCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List
	failed  map[string]failedBuild
	flight  singleflight.Group
	options Options
	now     func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	builds    atomic.Int64
	failures  atomic.Int64
}

// New creates an IndexCache.
func New(opts ...Option) *IndexCache {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.MaxEntries <= 0 {
		options.MaxEntries = DefaultOptions().MaxEntries
	}

	return &IndexCache{
		entries: make(map[string]*entry),
		lru:     list.New(),
		failed:  make(map[string]failedBuild),
		options: options,
		now:     time.Now,
	}
}

// Get returns the cached index for id.
func (c *IndexCache) Get(id string) (*index.Index, bool) {
	idx, ok := c.lookup(id)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return idx, true
}

// lookup is Get without hit and miss accounting.
func (c *IndexCache) lookup(id string) (*index.Index, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if ok && c.expiredLocked(e) {
		c.removeLocked(e)
		ok = false
	}
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(e.lruElement)
	return e.idx, true
}

// GetOrBuild returns the cached index for id or builds it.
//
// Description:
//
//	Concurrent calls for the same id share one build. A failed build is
//	remembered for ErrorCacheTTL and reported as *ErrBuildFailed without
//	calling build again.
func (c *IndexCache) GetOrBuild(ctx context.Context, id string, build BuildFunc) (*index.Index, error) {
	if idx, ok := c.Get(id); ok {
		return idx, nil
	}

	if fb, ok := c.cachedError(id); ok {
		return nil, &ErrBuildFailed{ID: id, Err: fb.err, RetryAt: fb.retryAt}
	}

	result, err, _ := c.flight.Do(id, func() (interface{}, error) {
		// A flight for id may have finished since the Get above.
		if idx, ok := c.lookup(id); ok {
			return idx, nil
		}
		idx, err := build(ctx, id)
		if err == nil && idx == nil {
			err = ErrNilIndex
		}
		if err != nil {
			c.failures.Add(1)
			c.cacheError(id, err)
			return nil, err
		}
		c.builds.Add(1)
		c.add(id, idx)
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*index.Index), nil
}

// Put stores an already built index, replacing any entry for id.
func (c *IndexCache) Put(id string, idx *index.Index) {
	c.add(id, idx)
}

// Invalidate removes the entry and any cached failure for id.
func (c *IndexCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok {
		c.removeLocked(e)
	}
	delete(c.failed, id)
}

// Clear removes every entry.
func (c *IndexCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.lru.Init()
	c.failed = make(map[string]failedBuild)
}

// Len returns the number of cached indices.
func (c *IndexCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns current cache statistics.
func (c *IndexCache) Stats() Stats {
	return Stats{
		Entries:    c.Len(),
		MaxEntries: c.options.MaxEntries,
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Evictions:  c.evictions.Load(),
		Builds:     c.builds.Load(),
		Errors:     c.failures.Load(),
	}
}

func (c *IndexCache) add(id string, idx *index.Index) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.failed, id)
	if e, ok := c.entries[id]; ok {
		e.idx = idx
		e.builtAt = c.now()
		c.lru.MoveToFront(e.lruElement)
		return
	}

	for len(c.entries) >= c.options.MaxEntries {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(c.entries[oldest.Value.(string)])
		c.evictions.Add(1)
	}

	e := &entry{id: id, idx: idx, builtAt: c.now()}
	e.lruElement = c.lru.PushFront(id)
	c.entries[id] = e
}

func (c *IndexCache) removeLocked(e *entry) {
	c.lru.Remove(e.lruElement)
	delete(c.entries, e.id)
}

func (c *IndexCache) expiredLocked(e *entry) bool {
	return c.options.MaxAge > 0 && c.now().Sub(e.builtAt) > c.options.MaxAge
}

func (c *IndexCache) cachedError(id string) (failedBuild, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fb, ok := c.failed[id]
	if !ok {
		return failedBuild{}, false
	}
	if !c.now().Before(fb.retryAt) {
		delete(c.failed, id)
		return failedBuild{}, false
	}
	return fb, true
}

func (c *IndexCache) cacheError(id string, err error) {
	if c.options.ErrorCacheTTL <= 0 {
		return
	}
	// Cancellation says nothing about the snapshot.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed[id] = failedBuild{err: err, retryAt: c.now().Add(c.options.ErrorCacheTTL)}
}

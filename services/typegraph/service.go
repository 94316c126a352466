// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package typegraph serves type-relationship indices over HTTP.
//
// A snapshot is a stored fact set. Creating one builds its index once,
// which both validates the facts and primes the index cache. Queries load
// the snapshot's index through the cache, rebuilding it from storage after
// eviction or restart.
package typegraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/AleutianAI/typegraph/services/typegraph/cache"
	"github.com/AleutianAI/typegraph/services/typegraph/dot"
	"github.com/AleutianAI/typegraph/services/typegraph/facts"
	"github.com/AleutianAI/typegraph/services/typegraph/graph"
	"github.com/AleutianAI/typegraph/services/typegraph/index"
	"github.com/AleutianAI/typegraph/services/typegraph/lazy"
	badgerstore "github.com/AleutianAI/typegraph/services/typegraph/storage/badger"
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// BuildOptions are passed to every index.Build.
	BuildOptions []index.BuildOption

	// WarmOnBuild materializes every bulk query right after a build.
	WarmOnBuild bool

	// Logger receives service events. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{Logger: slog.Default()}
}

// Service ties the snapshot store, the index cache and the builder
// together.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	store     *badgerstore.FactStore
	cache     *cache.IndexCache
	buildOpts []index.BuildOption
	warm      bool
	logger    *slog.Logger

	mu      sync.Mutex
	watcher *facts.Watcher
	watched string
}

// NewService creates a Service over a fact store and an index cache.
func NewService(store *badgerstore.FactStore, idxCache *cache.IndexCache, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := append([]index.BuildOption{index.WithLogger(logger)}, cfg.BuildOptions...)
	return &Service{
		store:     store,
		cache:     idxCache,
		buildOpts: opts,
		warm:      cfg.WarmOnBuild,
		logger:    logger,
	}
}

// CreateSnapshot builds an index from snap.Facts and, if that succeeds,
// stores the snapshot and caches the index.
//
// Description:
//
//	A fact set that cannot be indexed is never stored. The returned stats
//	describe the build.
//
// Errors:
//
//	ErrInvalidFacts - the facts cannot be indexed (wraps the cause)
//	badgerstore.ErrInvalidSnapshotID - snap.ID is set but not a UUID
func (s *Service) CreateSnapshot(ctx context.Context, snap badgerstore.Snapshot) (badgerstore.SnapshotInfo, index.BuildStats, error) {
	idx, err := s.build(ctx, snap.Facts)
	if err != nil {
		return badgerstore.SnapshotInfo{}, index.BuildStats{}, err
	}

	saved, err := s.store.Save(ctx, snap)
	if err != nil {
		return badgerstore.SnapshotInfo{}, index.BuildStats{}, err
	}
	s.cache.Put(saved.ID, idx)

	s.logger.Info("snapshot created",
		slog.String("snapshot_id", saved.ID),
		slog.String("name", saved.Name),
		slog.Int("facts", len(saved.Facts)),
	)
	return saved.Info(), idx.Stats(), nil
}

// ImportFile loads a fact file and creates a snapshot from it. An empty
// name defaults to the file's base name.
func (s *Service) ImportFile(ctx context.Context, path, name string) (badgerstore.SnapshotInfo, index.BuildStats, error) {
	set, err := facts.LoadFile(path)
	if err != nil {
		return badgerstore.SnapshotInfo{}, index.BuildStats{}, err
	}
	return s.importSet(ctx, set, name)
}

func (s *Service) importSet(ctx context.Context, set facts.FactSet, name string) (badgerstore.SnapshotInfo, index.BuildStats, error) {
	if name == "" {
		name = filepath.Base(set.Source)
	}
	return s.CreateSnapshot(ctx, badgerstore.Snapshot{
		Name:   name,
		Source: set.Source,
		Facts:  set.Facts,
	})
}

// Snapshot returns the metadata of a stored snapshot.
func (s *Service) Snapshot(ctx context.Context, id string) (badgerstore.SnapshotInfo, error) {
	snap, err := s.store.Load(ctx, id)
	if err != nil {
		return badgerstore.SnapshotInfo{}, err
	}
	return snap.Info(), nil
}

// ListSnapshots returns every stored snapshot, newest first.
func (s *Service) ListSnapshots(ctx context.Context) ([]badgerstore.SnapshotInfo, error) {
	return s.store.List(ctx)
}

// DeleteSnapshot removes a snapshot and its cached index.
func (s *Service) DeleteSnapshot(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(id)
	s.logger.Info("snapshot deleted", slog.String("snapshot_id", id))
	return nil
}

// Index returns the index of a snapshot, building it on a cache miss.
func (s *Service) Index(ctx context.Context, id string) (*index.Index, error) {
	return s.cache.GetOrBuild(ctx, id, s.loadAndBuild)
}

func (s *Service) loadAndBuild(ctx context.Context, id string) (*index.Index, error) {
	snap, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.build(ctx, snap.Facts)
}

func (s *Service) build(ctx context.Context, in []facts.Fact) (*index.Index, error) {
	idx, err := index.Build(ctx, in, s.buildOpts...)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidFacts, err)
	}
	if s.warm {
		idx.Warm()
	}
	return idx, nil
}

// Query runs a named query against a snapshot's index.
func (s *Service) Query(ctx context.Context, id string, q index.Query, name string) ([]string, error) {
	if !q.Valid() {
		return nil, fmt.Errorf("%w: %q", index.ErrUnknownQuery, q)
	}
	idx, err := s.Index(ctx, id)
	if err != nil {
		return nil, err
	}
	return idx.Run(ctx, q, name)
}

// Names returns the entity names of one kind, or all names when kind is
// empty. "class" is accepted for standard.
func (s *Service) Names(ctx context.Context, id, kind string) ([]string, error) {
	q := index.QueryAllNames
	if kind != "" {
		k, err := graph.ParseKind(kind)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
		}
		switch k {
		case graph.KindStandard:
			q = index.QueryStandardClasses
		case graph.KindInterface:
			q = index.QueryInterfaces
		case graph.KindAnnotation:
			q = index.QueryAnnotations
		}
	}
	return s.Query(ctx, id, q, "")
}

// Dot renders a snapshot's graph in GraphViz format.
func (s *Service) Dot(ctx context.Context, id string, w io.Writer, opts ...dot.Option) error {
	idx, err := s.Index(ctx, id)
	if err != nil {
		return err
	}
	return dot.Render(w, idx.Graph(), opts...)
}

// ExportFacts writes a snapshot's facts as a fact document.
func (s *Service) ExportFacts(ctx context.Context, id string, w io.Writer, format facts.Format) error {
	snap, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}
	return facts.Encode(w, facts.FactSet{
		Version: facts.CurrentVersion,
		Source:  snap.Source,
		Facts:   snap.Facts,
	}, format)
}

// Stats returns build statistics and per-query cache counters for a
// snapshot's index.
func (s *Service) Stats(ctx context.Context, id string) (StatsResponse, error) {
	idx, err := s.Index(ctx, id)
	if err != nil {
		return StatsResponse{}, err
	}
	build := idx.Stats()

	dropped := make([]DroppedRelationInfo, 0, len(build.Dropped))
	for _, d := range build.Dropped {
		dropped = append(dropped, DroppedRelationInfo{
			From:     d.From,
			To:       d.To,
			Relation: string(d.Relation),
			Reason:   d.Err.Error(),
		})
	}

	queries := make(map[string]lazy.Stats)
	for q, st := range idx.CacheStats() {
		queries[string(q)] = st
	}

	return StatsResponse{
		SnapshotID: id,
		Build:      build,
		Dropped:    dropped,
		Queries:    queries,
	}, nil
}

// CacheStats returns index cache counters.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// Watch imports the fact file at path and re-imports it on every change.
//
// Description:
//
//	Each successful reload creates a new snapshot (a full rebuild) and then
//	deletes the previous watched snapshot. A reload that fails to decode or
//	build is logged and the previous snapshot stays current.
//
// Errors:
//
//	ErrWatchActive - Watch was already called
//	Any error from the initial import or from starting the watcher.
func (s *Service) Watch(ctx context.Context, path string, debounce time.Duration) (badgerstore.SnapshotInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return badgerstore.SnapshotInfo{}, ErrWatchActive
	}

	info, _, err := s.ImportFile(ctx, path, "")
	if err != nil {
		return badgerstore.SnapshotInfo{}, err
	}
	s.watched = info.ID

	opts := facts.DefaultWatcherOptions()
	opts.Logger = s.logger
	if debounce > 0 {
		opts.DebounceWindow = debounce
	}
	w, err := facts.NewWatcher(path, s.reload, &opts)
	if err != nil {
		return badgerstore.SnapshotInfo{}, err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return badgerstore.SnapshotInfo{}, err
	}
	s.watcher = w

	s.logger.Info("watching fact file",
		slog.String("path", path),
		slog.String("snapshot_id", info.ID),
	)
	return info, nil
}

func (s *Service) reload(ctx context.Context, set facts.FactSet, err error) {
	if err != nil {
		s.logger.Warn("fact file reload failed", slog.String("error", err.Error()))
		return
	}

	info, _, err := s.importSet(ctx, set, "")
	if err != nil {
		s.logger.Warn("fact file rebuild failed",
			slog.String("source", set.Source),
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	previous := s.watched
	s.watched = info.ID
	s.mu.Unlock()

	if previous != "" {
		if err := s.DeleteSnapshot(ctx, previous); err != nil && !errors.Is(err, badgerstore.ErrSnapshotNotFound) {
			s.logger.Warn("deleting superseded snapshot failed",
				slog.String("snapshot_id", previous),
				slog.String("error", err.Error()),
			)
		}
	}
}

// WatchedSnapshot returns the ID of the snapshot built from the watched
// file, or "" when nothing is watched.
func (s *Service) WatchedSnapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watched
}

// Close stops the file watcher, if any.
func (s *Service) Close() {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

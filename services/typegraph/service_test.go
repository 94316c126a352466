// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package typegraph

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/typegraph/services/typegraph/cache"
	"github.com/AleutianAI/typegraph/services/typegraph/facts"
	"github.com/AleutianAI/typegraph/services/typegraph/graph"
	"github.com/AleutianAI/typegraph/services/typegraph/index"
	badgerstore "github.com/AleutianAI/typegraph/services/typegraph/storage/badger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := DefaultServiceConfig()
	cfg.Logger = discardLogger()
	svc := NewService(badgerstore.NewFactStore(db), cache.New(cache.WithMaxEntries(4)), cfg)
	t.Cleanup(svc.Close)
	return svc
}

func zooFacts() []facts.Fact {
	return []facts.Fact{
		{Name: "Animal"},
		{Name: "Dog", Superclasses: []string{"Animal"}, Interfaces: []string{"Pet"}, Annotations: []string{"Deprecated"}},
		{Name: "Puppy", Superclasses: []string{"Dog"}},
		{Name: "Pet", Kind: graph.KindInterface},
		{Name: "Deprecated", Kind: graph.KindAnnotation},
	}
}

func TestService_CreateAndQuery(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	info, stats, err := svc.CreateSnapshot(ctx, badgerstore.Snapshot{Name: "zoo", Facts: zooFacts()})
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, 5, info.FactCount)
	assert.Equal(t, 5, stats.NodesCreated)

	got, err := svc.Query(ctx, info.ID, index.QuerySubclasses, "Animal")
	require.NoError(t, err)
	assert.Equal(t, []string{"Dog", "Puppy"}, got)

	got, err = svc.Query(ctx, info.ID, index.QueryClassesImplementing, "Pet")
	require.NoError(t, err)
	assert.Equal(t, []string{"Dog", "Puppy"}, got)

	got, err = svc.Query(ctx, info.ID, index.QueryAnnotationsOn, "Dog")
	require.NoError(t, err)
	assert.Equal(t, []string{"Deprecated"}, got)

	got, err = svc.Query(ctx, info.ID, index.QuerySubclasses, "Nope")
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)

	cs := svc.CacheStats()
	assert.Equal(t, 1, cs.Entries)
	assert.Zero(t, cs.Builds, "create primes the cache without a cache build")
}

func TestService_IndexRebuiltAfterInvalidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	info, _, err := svc.CreateSnapshot(ctx, badgerstore.Snapshot{Facts: zooFacts()})
	require.NoError(t, err)

	svc.cache.Clear()
	idx, err := svc.Index(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Pet"}, idx.InterfaceNames())
	assert.EqualValues(t, 1, svc.CacheStats().Builds)
}

func TestService_Names(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	info, _, err := svc.CreateSnapshot(ctx, badgerstore.Snapshot{Facts: zooFacts()})
	require.NoError(t, err)

	tests := []struct {
		kind string
		want []string
	}{
		{"", []string{"Animal", "Deprecated", "Dog", "Pet", "Puppy"}},
		{"standard", []string{"Animal", "Dog", "Puppy"}},
		{"class", []string{"Animal", "Dog", "Puppy"}},
		{"interface", []string{"Pet"}},
		{"annotation", []string{"Deprecated"}},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			got, err := svc.Names(ctx, info.ID, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = svc.Names(ctx, info.ID, "enum")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestService_InvalidFactsNotStored(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		facts []facts.Fact
		cause error
	}{
		{
			name: "kind conflict",
			facts: []facts.Fact{
				{Name: "A", Kind: graph.KindInterface},
				{Name: "A", Kind: graph.KindAnnotation},
			},
			cause: facts.ErrKindConflict,
		},
		{
			name: "cycle",
			facts: []facts.Fact{
				{Name: "A", Superclasses: []string{"B"}},
				{Name: "B", Superclasses: []string{"A"}},
			},
			cause: graph.ErrCycle,
		},
		{
			name:  "empty name",
			facts: []facts.Fact{{Name: ""}},
			cause: facts.ErrInvalidFact,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.CreateSnapshot(ctx, badgerstore.Snapshot{Facts: tt.facts})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidFacts)
			assert.ErrorIs(t, err, tt.cause)
		})
	}

	list, err := svc.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_DeleteInvalidatesCache(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	info, _, err := svc.CreateSnapshot(ctx, badgerstore.Snapshot{Facts: zooFacts()})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteSnapshot(ctx, info.ID))

	assert.Equal(t, 0, svc.CacheStats().Entries)
	_, err = svc.Query(ctx, info.ID, index.QueryAllNames, "")
	assert.ErrorIs(t, err, badgerstore.ErrSnapshotNotFound)
}

func TestService_UnknownQuery(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Query(context.Background(), "not-even-looked-up", index.Query("cousins"), "A")
	assert.ErrorIs(t, err, index.ErrUnknownQuery)
}

func TestService_DotAndExport(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	info, _, err := svc.CreateSnapshot(ctx, badgerstore.Snapshot{Source: "zoo.yaml", Facts: zooFacts()})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, svc.Dot(ctx, info.ID, &out))
	assert.True(t, strings.HasPrefix(out.String(), "digraph"))
	assert.Contains(t, out.String(), "arrowhead=odiamond")

	out.Reset()
	require.NoError(t, svc.ExportFacts(ctx, info.ID, &out, facts.FormatYAML))
	set, err := facts.Decode(&out, facts.FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "zoo.yaml", set.Source)
	assert.Len(t, set.Facts, 5)
}

func TestService_Stats(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	info, _, err := svc.CreateSnapshot(ctx, badgerstore.Snapshot{Facts: []facts.Fact{
		{Name: "A", Superclasses: []string{"Missing"}},
	}})
	require.NoError(t, err)

	_, err = svc.Query(ctx, info.ID, index.QuerySubclasses, "A")
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Build.UnknownReferences)
	require.Len(t, stats.Dropped, 1)
	assert.Equal(t, "Missing", stats.Dropped[0].To)
	assert.Equal(t, "superclass", stats.Dropped[0].Relation)
	assert.EqualValues(t, 1, stats.Queries[string(index.QuerySubclasses)].Computations)
}

func TestService_ConcurrentQueriesBuildOnce(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	info, _, err := svc.CreateSnapshot(ctx, badgerstore.Snapshot{Facts: zooFacts()})
	require.NoError(t, err)
	svc.cache.Clear()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.Query(ctx, info.ID, index.QuerySuperclasses, "Puppy")
			assert.NoError(t, err)
			assert.Equal(t, []string{"Animal", "Dog"}, got)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, svc.CacheStats().Builds)
}

const watchedV1 = `
facts:
  - name: Animal
  - name: Dog
    superclasses: [Animal]
`

const watchedV2 = `
facts:
  - name: Animal
  - name: Dog
    superclasses: [Animal]
  - name: Cat
    superclasses: [Animal]
`

func TestService_Watch(t *testing.T) {
	svc := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "facts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watchedV1), 0600))

	first, err := svc.Watch(ctx, path, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "facts.yaml", first.Name)
	assert.Equal(t, first.ID, svc.WatchedSnapshot())

	_, err = svc.Watch(ctx, path, 0)
	assert.ErrorIs(t, err, ErrWatchActive)

	require.NoError(t, os.WriteFile(path, []byte(watchedV2), 0600))
	require.Eventually(t, func() bool {
		return svc.WatchedSnapshot() != first.ID
	}, 5*time.Second, 20*time.Millisecond)

	current := svc.WatchedSnapshot()
	got, err := svc.Query(ctx, current, index.QuerySubclasses, "Animal")
	require.NoError(t, err)
	assert.Equal(t, []string{"Cat", "Dog"}, got)

	require.Eventually(t, func() bool {
		list, err := svc.ListSnapshots(ctx)
		return err == nil && len(list) == 1 && list[0].ID == current
	}, 5*time.Second, 20*time.Millisecond, "superseded snapshot is deleted")
}

func TestService_WatchBadReloadKeepsSnapshot(t *testing.T) {
	svc := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "facts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watchedV1), 0600))
	first, err := svc.Watch(ctx, path, 20*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("facts: [{name: A, superclasses: [B]}, {name: B, superclasses: [A]}]\n"), 0600))
	time.Sleep(300 * time.Millisecond)

	assert.Equal(t, first.ID, svc.WatchedSnapshot())
	_, err = svc.Snapshot(ctx, first.ID)
	assert.NoError(t, err)
}

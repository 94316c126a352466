// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/typegraph/services/typegraph/facts"
	"github.com/AleutianAI/typegraph/services/typegraph/graph"
)

func newTestStore(t *testing.T) *FactStore {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewFactStore(db)
}

func TestOpen(t *testing.T) {
	t.Run("requires path", func(t *testing.T) {
		_, err := Open(Config{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "path is required")
	})

	t.Run("persistent reopen", func(t *testing.T) {
		dir := t.TempDir()
		cfg := DefaultConfig()
		cfg.Path = dir
		cfg.SyncWrites = false

		db, err := Open(cfg)
		require.NoError(t, err)
		assert.Equal(t, dir, db.Path())
		assert.False(t, db.InMemory())

		saved, err := NewFactStore(db).Save(context.Background(), Snapshot{Facts: []facts.Fact{{Name: "A"}}})
		require.NoError(t, err)
		require.NoError(t, db.Close())

		db2, err := Open(cfg)
		require.NoError(t, err)
		defer db2.Close()

		loaded, err := NewFactStore(db2).Load(context.Background(), saved.ID)
		require.NoError(t, err)
		assert.Equal(t, saved, loaded)
	})

	t.Run("config defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.True(t, cfg.SyncWrites)
		assert.Equal(t, 5*time.Minute, cfg.GCInterval)
		assert.True(t, InMemoryConfig().InMemory)
	})
}

func TestDB_WithTxn(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	assert.True(t, db.InMemory())

	ctx := context.Background()
	require.NoError(t, db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	}))
	require.NoError(t, db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("k"))
		require.NoError(t, err)
		return item.Value(func(val []byte) error {
			assert.Equal(t, []byte("v"), val)
			return nil
		})
	}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, db.WithTxn(cancelled, func(*badger.Txn) error { return nil }))
	assert.Error(t, db.WithReadTxn(cancelled, func(*badger.Txn) error { return nil }))
}

func TestFactStore_SaveLoad(t *testing.T) {
	store := newTestStore(t)
	store.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	ctx := context.Background()

	saved, err := store.Save(ctx, Snapshot{
		Name:   "zoo",
		Source: "facts.yaml",
		Facts: []facts.Fact{
			{Name: "Dog", Superclasses: []string{"Animal"}},
			{Name: "Pet", Kind: graph.KindInterface},
		},
	})
	require.NoError(t, err)

	_, err = uuid.Parse(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_000), saved.CreatedAtMilli)

	loaded, err := store.Load(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
	assert.Equal(t, graph.KindInterface, loaded.Facts[1].Kind)
}

func TestFactStore_Errors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Load(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidSnapshotID)

	_, err = store.Load(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	assert.ErrorIs(t, store.Delete(ctx, uuid.NewString()), ErrSnapshotNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "bad"), ErrInvalidSnapshotID)

	_, err = store.Save(ctx, Snapshot{ID: "bad"})
	assert.ErrorIs(t, err, ErrInvalidSnapshotID)
}

func TestFactStore_ListDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var clock int64 = 1000
	store.now = func() time.Time {
		clock++
		return time.UnixMilli(clock)
	}

	first, err := store.Save(ctx, Snapshot{Name: "first", Facts: []facts.Fact{{Name: "A"}}})
	require.NoError(t, err)
	second, err := store.Save(ctx, Snapshot{Name: "second", Facts: []facts.Fact{{Name: "A"}, {Name: "B"}}})
	require.NoError(t, err)

	infos, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, second.Info(), infos[0], "newest first")
	assert.Equal(t, 1, infos[1].FactCount)

	require.NoError(t, store.Delete(ctx, first.ID))
	infos, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, second.ID, infos[0].ID)

	_, err = store.Load(ctx, first.ID)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestFactStore_ListEmpty(t *testing.T) {
	infos, err := newTestStore(t).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, infos)
	assert.Empty(t, infos)
}

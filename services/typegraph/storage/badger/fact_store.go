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
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/typegraph/services/typegraph/facts"
)

// Key prefixes. Info records are kept apart from fact payloads so List
// never decodes facts.
const (
	snapshotPrefix = "snapshot/"
	infoPrefix     = "info/"
)

// Sentinel errors for the fact store.
var (
	// ErrSnapshotNotFound is returned when no snapshot has the given ID.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrInvalidSnapshotID is returned when an ID is not a UUID.
	ErrInvalidSnapshotID = errors.New("invalid snapshot id")
)

// Snapshot is a stored fact set.
type Snapshot struct {
	// ID is the snapshot UUID. Assigned by Save when empty.
	ID string `json:"id"`

	// Name is an optional human-readable label.
	Name string `json:"name,omitempty"`

	// Source is where the facts came from, e.g. a file path.
	Source string `json:"source,omitempty"`

	// CreatedAtMilli is the Unix timestamp in milliseconds. Assigned by
	// Save when zero.
	CreatedAtMilli int64 `json:"created_at_milli"`

	// Facts are the raw facts as imported.
	Facts []facts.Fact `json:"facts"`
}

// Info returns the listing record for the snapshot.
func (s Snapshot) Info() SnapshotInfo {
	return SnapshotInfo{
		ID:             s.ID,
		Name:           s.Name,
		Source:         s.Source,
		CreatedAtMilli: s.CreatedAtMilli,
		FactCount:      len(s.Facts),
	}
}

// SnapshotInfo describes a snapshot without its facts.
type SnapshotInfo struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	Source         string `json:"source,omitempty"`
	CreatedAtMilli int64  `json:"created_at_milli"`
	FactCount      int    `json:"fact_count"`
}

// FactStore stores fact snapshots in BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type FactStore struct {
	db  *DB
	now func() time.Time
}

// NewFactStore creates a store over an open database. The store does not
// own db; the caller closes it.
func NewFactStore(db *DB) *FactStore {
	return &FactStore{db: db, now: time.Now}
}

// Save writes a snapshot and returns it with ID and CreatedAtMilli set.
//
// Description:
//
//	Saving an existing ID replaces that snapshot.
//
// Errors:
//
//	ErrInvalidSnapshotID - ID is set but is not a UUID
func (s *FactStore) Save(ctx context.Context, snap Snapshot) (Snapshot, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	} else if _, err := uuid.Parse(snap.ID); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrInvalidSnapshotID, snap.ID)
	}
	if snap.CreatedAtMilli == 0 {
		snap.CreatedAtMilli = s.now().UnixMilli()
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode snapshot: %w", err)
	}
	info, err := json.Marshal(snap.Info())
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode snapshot info: %w", err)
	}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set([]byte(snapshotPrefix+snap.ID), payload); err != nil {
			return err
		}
		return txn.Set([]byte(infoPrefix+snap.ID), info)
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("save snapshot %s: %w", snap.ID, err)
	}
	return snap, nil
}

// Load reads a snapshot by ID.
//
// Errors:
//
//	ErrInvalidSnapshotID - id is not a UUID
//	ErrSnapshotNotFound - no snapshot has this id
func (s *FactStore) Load(ctx context.Context, id string) (Snapshot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrInvalidSnapshotID, id)
	}

	var snap Snapshot
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// List returns every snapshot's info, newest first.
func (s *FactStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	infos := make([]SnapshotInfo, 0)
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(infoPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var info SnapshotInfo
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &info)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			infos = append(infos, info)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAtMilli != infos[j].CreatedAtMilli {
			return infos[i].CreatedAtMilli > infos[j].CreatedAtMilli
		}
		return infos[i].ID < infos[j].ID
	})
	return infos, nil
}

// Delete removes a snapshot.
//
// Errors:
//
//	ErrInvalidSnapshotID - id is not a UUID
//	ErrSnapshotNotFound - no snapshot has this id
func (s *FactStore) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidSnapshotID, id)
	}

	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(infoPrefix + id)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
		} else if err != nil {
			return err
		}
		if err := txn.Delete([]byte(snapshotPrefix + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(infoPrefix + id))
	})
}

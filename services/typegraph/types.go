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
	"github.com/AleutianAI/typegraph/services/typegraph/cache"
	"github.com/AleutianAI/typegraph/services/typegraph/facts"
	"github.com/AleutianAI/typegraph/services/typegraph/index"
	"github.com/AleutianAI/typegraph/services/typegraph/lazy"
	badgerstore "github.com/AleutianAI/typegraph/services/typegraph/storage/badger"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "0.1.0"

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// CreateSnapshotRequest is the body of POST /snapshots.
type CreateSnapshotRequest struct {
	// Name is an optional label.
	Name string `json:"name" binding:"max=256"`

	// Source describes where the facts came from.
	Source string `json:"source" binding:"max=1024"`

	// Facts are the type facts to index. Must be present; may be empty.
	Facts []facts.Fact `json:"facts" binding:"required"`
}

// SnapshotResponse describes a stored snapshot and, when it was just
// built, the build statistics.
type SnapshotResponse struct {
	Snapshot badgerstore.SnapshotInfo `json:"snapshot"`
	Build    *index.BuildStats        `json:"build,omitempty"`
}

// ListSnapshotsResponse is returned by GET /snapshots.
type ListSnapshotsResponse struct {
	Snapshots []badgerstore.SnapshotInfo `json:"snapshots"`
	Count     int                        `json:"count"`
}

// NamesRequest holds the query parameters of GET /snapshots/:id/names.
type NamesRequest struct {
	// Kind filters by entity kind. Empty returns every name.
	Kind string `form:"kind" binding:"omitempty,oneof=standard class interface annotation"`
}

// NamesResponse is returned by GET /snapshots/:id/names.
type NamesResponse struct {
	SnapshotID string   `json:"snapshot_id"`
	Kind       string   `json:"kind,omitempty"`
	Names      []string `json:"names"`
	Count      int      `json:"count"`
}

// QueryRequest holds the query parameters of GET /snapshots/:id/query/:query.
type QueryRequest struct {
	// Name is the entity the query is about. Required by every query
	// except the name listings.
	Name string `form:"name" binding:"max=4096"`
}

// QueryResponse is returned by GET /snapshots/:id/query/:query.
type QueryResponse struct {
	SnapshotID string   `json:"snapshot_id"`
	Query      string   `json:"query"`
	Name       string   `json:"name,omitempty"`
	Results    []string `json:"results"`
	Count      int      `json:"count"`
}

// QueryInfo describes one supported query.
type QueryInfo struct {
	Name      string `json:"name"`
	NeedsName bool   `json:"needs_name"`
}

// QueriesResponse is returned by GET /queries.
type QueriesResponse struct {
	Queries []QueryInfo `json:"queries"`
}

// DotRequest holds the query parameters of GET /snapshots/:id/dot.
type DotRequest struct {
	Layout string `form:"layout" binding:"omitempty,oneof=dot neato fdp sfdp circo twopi"`
	Size   string `form:"size" binding:"max=32"`
	Split  *bool  `form:"split"`
}

// FactsRequest holds the query parameters of GET /snapshots/:id/facts.
type FactsRequest struct {
	Format string `form:"format" binding:"omitempty,oneof=yaml yml json"`
}

// DroppedRelationInfo is the JSON form of index.DroppedRelation.
type DroppedRelationInfo struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"`
	Reason   string `json:"reason"`
}

// StatsResponse is returned by GET /snapshots/:id/stats.
type StatsResponse struct {
	SnapshotID string                `json:"snapshot_id"`
	Build      index.BuildStats      `json:"build"`
	Dropped    []DroppedRelationInfo `json:"dropped"`
	Queries    map[string]lazy.Stats `json:"queries"`
}

// CacheStatsResponse is returned by GET /cache/stats.
type CacheStatsResponse struct {
	Cache cache.Stats `json:"cache"`
}

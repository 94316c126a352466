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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/typegraph/services/typegraph/dot"
	"github.com/AleutianAI/typegraph/services/typegraph/facts"
	"github.com/AleutianAI/typegraph/services/typegraph/index"
	badgerstore "github.com/AleutianAI/typegraph/services/typegraph/storage/badger"
)

// Handlers contains the HTTP handlers for the typegraph API.
type Handlers struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandlers creates handlers backed by svc.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc, logger: svc.logger}
}

// HandleHealth handles GET /v1/typegraph/health.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleCreateSnapshot handles POST /v1/typegraph/snapshots.
//
// Description:
//
//	Builds an index from the posted facts and stores them as a new
//	snapshot. Facts that cannot be indexed are rejected and not stored.
//
// Request Body:
//
//	CreateSnapshotRequest
//
// Response:
//
//	201 Created: SnapshotResponse
//	400 Bad Request: Malformed body
//	413 Request Entity Too Large: Body over the configured limit
//	422 Unprocessable Entity: Kind conflict, cycle, invalid fact
func (h *Handlers) HandleCreateSnapshot(c *gin.Context) {
	logger := h.requestLogger(c, "HandleCreateSnapshot")

	var req CreateSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, logger, err)
		return
	}

	info, stats, err := h.svc.CreateSnapshot(c.Request.Context(), badgerstore.Snapshot{
		Name:   req.Name,
		Source: req.Source,
		Facts:  req.Facts,
	})
	if err != nil {
		h.fail(c, logger, "Create snapshot failed", err)
		return
	}

	logger.Info("Snapshot created", "snapshot_id", info.ID, "facts", info.FactCount)
	c.JSON(http.StatusCreated, SnapshotResponse{Snapshot: info, Build: &stats})
}

// HandleListSnapshots handles GET /v1/typegraph/snapshots.
//
// Response:
//
//	200 OK: ListSnapshotsResponse
func (h *Handlers) HandleListSnapshots(c *gin.Context) {
	logger := h.requestLogger(c, "HandleListSnapshots")

	snapshots, err := h.svc.ListSnapshots(c.Request.Context())
	if err != nil {
		h.fail(c, logger, "List snapshots failed", err)
		return
	}
	c.JSON(http.StatusOK, ListSnapshotsResponse{
		Snapshots: snapshots,
		Count:     len(snapshots),
	})
}

// HandleGetSnapshot handles GET /v1/typegraph/snapshots/:id.
//
// Response:
//
//	200 OK: SnapshotResponse (without build stats)
//	400 Bad Request: ID is not a UUID
//	404 Not Found: No such snapshot
func (h *Handlers) HandleGetSnapshot(c *gin.Context) {
	logger := h.requestLogger(c, "HandleGetSnapshot")

	info, err := h.svc.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, logger, "Get snapshot failed", err)
		return
	}
	c.JSON(http.StatusOK, SnapshotResponse{Snapshot: info})
}

// HandleDeleteSnapshot handles DELETE /v1/typegraph/snapshots/:id.
//
// Response:
//
//	204 No Content
//	404 Not Found: No such snapshot
func (h *Handlers) HandleDeleteSnapshot(c *gin.Context) {
	logger := h.requestLogger(c, "HandleDeleteSnapshot")

	if err := h.svc.DeleteSnapshot(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, logger, "Delete snapshot failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleNames handles GET /v1/typegraph/snapshots/:id/names.
//
// Query Parameters:
//
//	kind - standard (or class), interface, annotation; empty for all
//
// Response:
//
//	200 OK: NamesResponse
func (h *Handlers) HandleNames(c *gin.Context) {
	logger := h.requestLogger(c, "HandleNames")

	var req NamesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, logger, err)
		return
	}

	id := c.Param("id")
	names, err := h.svc.Names(c.Request.Context(), id, req.Kind)
	if err != nil {
		h.fail(c, logger, "Names failed", err)
		return
	}
	c.JSON(http.StatusOK, NamesResponse{
		SnapshotID: id,
		Kind:       req.Kind,
		Names:      names,
		Count:      len(names),
	})
}

// HandleQuery handles GET /v1/typegraph/snapshots/:id/query/:query.
//
// Description:
//
//	Runs one reachability query. Unknown entity names yield an empty
//	result, never an error.
//
// Query Parameters:
//
//	name - the entity the query is about
//
// Response:
//
//	200 OK: QueryResponse
//	400 Bad Request: Unknown query or missing name
//	404 Not Found: No such snapshot
func (h *Handlers) HandleQuery(c *gin.Context) {
	logger := h.requestLogger(c, "HandleQuery")

	var req QueryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, logger, err)
		return
	}

	id := c.Param("id")
	q := index.Query(c.Param("query"))
	results, err := h.svc.Query(c.Request.Context(), id, q, req.Name)
	if err != nil {
		h.fail(c, logger, "Query failed", err)
		return
	}

	logger.Debug("Query completed", "snapshot_id", id, "query", q, "results", len(results))
	c.JSON(http.StatusOK, QueryResponse{
		SnapshotID: id,
		Query:      string(q),
		Name:       req.Name,
		Results:    results,
		Count:      len(results),
	})
}

// HandleListQueries handles GET /v1/typegraph/queries.
//
// Response:
//
//	200 OK: QueriesResponse
func (h *Handlers) HandleListQueries(c *gin.Context) {
	all := index.Queries()
	resp := QueriesResponse{Queries: make([]QueryInfo, 0, len(all))}
	for _, q := range all {
		resp.Queries = append(resp.Queries, QueryInfo{Name: string(q), NeedsName: q.NeedsName()})
	}
	c.JSON(http.StatusOK, resp)
}

// HandleDot handles GET /v1/typegraph/snapshots/:id/dot.
//
// Query Parameters:
//
//	layout - GraphViz layout engine (default neato)
//	size - page size, e.g. "400,400"
//	split - wrap labels after the last '.' (default true)
//
// Response:
//
//	200 OK: text/vnd.graphviz
func (h *Handlers) HandleDot(c *gin.Context) {
	logger := h.requestLogger(c, "HandleDot")

	var req DotRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, logger, err)
		return
	}

	var opts []dot.Option
	if req.Layout != "" {
		opts = append(opts, dot.WithLayout(req.Layout))
	}
	if req.Size != "" {
		opts = append(opts, dot.WithSize(req.Size))
	}
	if req.Split != nil {
		opts = append(opts, dot.WithSplitLabels(*req.Split))
	}

	var buf bytes.Buffer
	if err := h.svc.Dot(c.Request.Context(), c.Param("id"), &buf, opts...); err != nil {
		h.fail(c, logger, "Dot render failed", err)
		return
	}
	c.Data(http.StatusOK, "text/vnd.graphviz; charset=utf-8", buf.Bytes())
}

// HandleFacts handles GET /v1/typegraph/snapshots/:id/facts.
//
// Query Parameters:
//
//	format - json (default) or yaml
//
// Response:
//
//	200 OK: fact document
func (h *Handlers) HandleFacts(c *gin.Context) {
	logger := h.requestLogger(c, "HandleFacts")

	var req FactsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, logger, err)
		return
	}

	format := facts.FormatJSON
	contentType := "application/json; charset=utf-8"
	if req.Format != "" {
		parsed, err := facts.ParseFormat(req.Format)
		if err != nil {
			h.fail(c, logger, "Export facts failed", err)
			return
		}
		format = parsed
	}
	if format == facts.FormatYAML {
		contentType = "application/yaml; charset=utf-8"
	}

	var buf bytes.Buffer
	if err := h.svc.ExportFacts(c.Request.Context(), c.Param("id"), &buf, format); err != nil {
		h.fail(c, logger, "Export facts failed", err)
		return
	}
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// HandleStats handles GET /v1/typegraph/snapshots/:id/stats.
//
// Response:
//
//	200 OK: StatsResponse
func (h *Handlers) HandleStats(c *gin.Context) {
	logger := h.requestLogger(c, "HandleStats")

	resp, err := h.svc.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, logger, "Stats failed", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleCacheStats handles GET /v1/typegraph/cache/stats.
//
// Response:
//
//	200 OK: CacheStatsResponse
func (h *Handlers) HandleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, CacheStatsResponse{Cache: h.svc.CacheStats()})
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return h.logger.With("request_id", getOrCreateRequestID(c), "handler", handler)
}

func (h *Handlers) badRequest(c *gin.Context, logger *slog.Logger, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	}
	logger.Warn("Invalid request", "error", err)
	c.JSON(status, ErrorResponse{
		Error:   "Invalid request",
		Code:    code,
		Details: err.Error(),
	})
}

func (h *Handlers) fail(c *gin.Context, logger *slog.Logger, msg string, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, "error", err)
	} else {
		logger.Warn(msg, "error", err, "code", code)
	}
	c.JSON(status, ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}

// getOrCreateRequestID returns the X-Request-ID header, generating one
// when absent, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

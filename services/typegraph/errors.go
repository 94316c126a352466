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
	"context"
	"errors"
	"net/http"

	"github.com/AleutianAI/typegraph/services/typegraph/facts"
	"github.com/AleutianAI/typegraph/services/typegraph/graph"
	"github.com/AleutianAI/typegraph/services/typegraph/index"
	badgerstore "github.com/AleutianAI/typegraph/services/typegraph/storage/badger"
)

// Sentinel errors for the typegraph service.
var (
	// ErrInvalidFacts wraps any failure to build an index from a fact set:
	// kind conflicts, invalid facts, cycles, size limits.
	ErrInvalidFacts = errors.New("invalid fact set")

	// ErrUnknownKind is returned for an unrecognized kind filter.
	ErrUnknownKind = errors.New("unknown entity kind")

	// ErrWatchActive is returned when a second file watch is requested.
	ErrWatchActive = errors.New("a fact file is already being watched")
)

// errorStatus maps a service error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE"
	case errors.Is(err, badgerstore.ErrSnapshotNotFound):
		return http.StatusNotFound, "SNAPSHOT_NOT_FOUND"
	case errors.Is(err, badgerstore.ErrInvalidSnapshotID):
		return http.StatusBadRequest, "INVALID_SNAPSHOT_ID"
	case errors.Is(err, index.ErrUnknownQuery):
		return http.StatusBadRequest, "UNKNOWN_QUERY"
	case errors.Is(err, index.ErrMissingArgument):
		return http.StatusBadRequest, "MISSING_NAME"
	case errors.Is(err, ErrUnknownKind):
		return http.StatusBadRequest, "UNKNOWN_KIND"
	case errors.Is(err, facts.ErrUnknownFormat):
		return http.StatusBadRequest, "UNKNOWN_FORMAT"
	case errors.Is(err, graph.ErrCycle):
		return http.StatusUnprocessableEntity, "CYCLE"
	case errors.Is(err, facts.ErrKindConflict):
		return http.StatusUnprocessableEntity, "KIND_CONFLICT"
	case errors.Is(err, graph.ErrMaxNodesExceeded):
		return http.StatusUnprocessableEntity, "TOO_MANY_ENTITIES"
	case errors.Is(err, ErrInvalidFacts):
		return http.StatusUnprocessableEntity, "INVALID_FACTS"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return 499, "CANCELED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

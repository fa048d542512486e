// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/cohortmart/internal/cohort"
	"github.com/tomtom215/cohortmart/internal/logging"
)

// respondQueryError maps an engine error to a status code. Internal errors
// are logged and replaced by a generic message.
func respondQueryError(rw *ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cohort.ErrNotFound):
		rw.Error(http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, cohort.ErrInvalidQuery):
		rw.Error(http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		rw.Error(http.StatusGatewayTimeout, ErrCodeTimeout, "query timed out")
	case errors.Is(err, context.Canceled):
		// The client went away; nobody reads the body.
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "request canceled")
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Query failed")
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "query failed")
	}
}

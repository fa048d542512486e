// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

/*
Package middleware provides HTTP middleware for the query API.

All middleware uses the http.HandlerFunc wrapping style:

	func(next http.HandlerFunc) http.HandlerFunc

The api package adapts them for chi's r.Use.

  - RequestID: propagates or generates X-Request-ID and stores it in the
    context for logging.Ctx.
  - PrometheusMetrics: request count and latency labeled by chi route
    pattern, plus an in-flight gauge.
  - Compression: gzip via klauspost/compress/gzhttp.
*/
package middleware

// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

/*
Package api exposes the cohort engine over HTTP with chi.

# Endpoints

	GET /api/v1/beatmaps/{id}/cohort           cohort size and pp distribution
	GET /api/v1/beatmaps/{id}/recommendations  ranked beatmap variants
	GET /api/v1/health/live                    process liveness
	GET /api/v1/health/ready                   warehouse reachable and built
	GET /metrics                               Prometheus exposition

Both beatmap endpoints accept the query parameters mods, lower and upper.
Recommendations additionally accept min_population, min_overlap and limit;
the cohort endpoint accepts members=true to list the cohort users.

# Responses

Every response uses the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}

Errors map as follows:
  - unparseable or out of range parameters: 400 VALIDATION_ERROR
  - seed beatmap without a recorded population: 404 NOT_FOUND
  - query timeout: 504 TIMEOUT
  - anything else: 500 INTERNAL_ERROR

An empty cohort is not an error. The cohort endpoint reports size 0 and
recommendations are an empty list.

# Middleware

Global: request ID, real IP, panic recovery, CORS (go-chi/cors).
API routes: per-IP rate limiting (go-chi/httprate), Prometheus metrics,
gzip compression and security headers.
*/
package api

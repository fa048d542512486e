// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

/*
Package services adapts application components to suture.Service.

HTTPServerService translates the blocking ListenAndServe pattern into a
context-aware Serve with graceful shutdown and an optional readiness
callback. CachePurgeService drops expired entries from the in-process
recommendation cache on a ticker.

Every service implements fmt.Stringer so that supervisor events name it.
*/
package services

// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package api

import (
	"context"
	"net/http"
	"time"
)

const readinessTimeout = 2 * time.Second

// HealthStatus is the body of the health endpoints.
type HealthStatus struct {
	Status  string            `json:"status"`
	Uptime  float64           `json:"uptime_seconds"`
	Checks  map[string]string `json:"checks,omitempty"`
	Version string            `json:"version,omitempty"`
}

// Version is reported by the health endpoints. Set at build time.
var Version = "dev"

// HealthLive handles GET /api/v1/health/live. It succeeds while the process
// can serve HTTP at all.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(HealthStatus{
		Status:  "alive",
		Uptime:  time.Since(h.startTime).Seconds(),
		Version: Version,
	})
}

// HealthReady handles GET /api/v1/health/ready. It fails until the server
// is marked ready and the warehouse answers with its mart tables built.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	checks := make(map[string]string)
	ok := true

	if h.ready.Load() {
		checks["server"] = "ok"
	} else {
		checks["server"] = "not ready"
		ok = false
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if status := h.checkWarehouse(ctx); status != "ok" {
			ok = false
			checks["warehouse"] = status
		} else {
			checks["warehouse"] = "ok"
		}
	}

	if !ok {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "service not ready", checks)
		return
	}
	rw.Success(HealthStatus{
		Status:  "ready",
		Uptime:  time.Since(h.startTime).Seconds(),
		Checks:  checks,
		Version: Version,
	})
}

func (h *Handler) checkWarehouse(ctx context.Context) string {
	if err := h.db.Ping(ctx); err != nil {
		return "unreachable: " + err.Error()
	}
	for _, table := range requiredTables {
		exists, err := h.db.TableExists(ctx, table)
		if err != nil {
			return "error: " + err.Error()
		}
		if !exists {
			return "missing table " + table
		}
	}
	return "ok"
}

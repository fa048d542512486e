// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package api

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tomtom215/cohortmart/internal/cohort"
	"github.com/tomtom215/cohortmart/internal/config"
	"github.com/tomtom215/cohortmart/internal/warehouse"
)

// CohortService answers cohort queries. *cohort.Engine satisfies it.
type CohortService interface {
	ExtractCohort(ctx context.Context, q cohort.Query) (*cohort.Cohort, error)
	CohortStats(ctx context.Context, q cohort.Query) (*cohort.Stats, error)
	Recommend(ctx context.Context, q cohort.Query) ([]cohort.Recommendation, error)
}

// Warehouse is the part of the warehouse the readiness probe needs.
// *warehouse.DB satisfies it.
type Warehouse interface {
	Ping(ctx context.Context) error
	TableExists(ctx context.Context, name string) (bool, error)
}

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	engine    CohortService
	db        Warehouse
	config    *config.Config
	startTime time.Time
	ready     atomic.Bool
}

// NewHandler creates a handler. db may be nil, in which case readiness only
// follows SetReady.
func NewHandler(engine CohortService, db Warehouse, cfg *config.Config) *Handler {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Handler{
		engine:    engine,
		db:        db,
		config:    cfg,
		startTime: time.Now(),
	}
}

// SetReady marks the server as accepting traffic. It is wired to the
// readiness callback of the HTTP service.
func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// requiredTables must exist before queries can be answered.
var requiredTables = []string{warehouse.TableBest, warehouse.TableUserSets}

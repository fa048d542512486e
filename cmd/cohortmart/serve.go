// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/cohortmart/internal/api"
	"github.com/tomtom215/cohortmart/internal/cohort"
	"github.com/tomtom215/cohortmart/internal/logging"
	"github.com/tomtom215/cohortmart/internal/supervisor"
	"github.com/tomtom215/cohortmart/internal/supervisor/services"
	"github.com/tomtom215/cohortmart/internal/warehouse"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve cohort queries over HTTP",
		Long: `Start the HTTP API under a suture supervisor tree. The API layer runs
the HTTP server; the data layer runs the cache purge ticker when the memory
cache backend is selected. Prometheus metrics are exposed on /metrics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	logging.Info().Str("addr", cfg.Server.Addr()).Msg("Starting cohortmart with supervisor tree")

	db, err := warehouse.Open(&cfg.Warehouse)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close warehouse")
		}
	}()
	for _, table := range []string{warehouse.TableBest, warehouse.TableUserSets} {
		if ok, err := db.TableExists(ctx, table); err != nil {
			return err
		} else if !ok {
			logging.Warn().Str("table", table).Msg("Mart table missing, readiness will fail until a transform runs")
		}
	}

	cache, err := cohort.NewCache(cfg.Cache)
	if err != nil {
		return err
	}
	var opts []cohort.Option
	if cache != nil {
		opts = append(opts, cohort.WithCache(cache))
		logging.Info().Str("backend", cache.Name()).Dur("ttl", cfg.Cache.TTL).Msg("Recommendation cache enabled")
	}
	if rc, ok := cache.(*cohort.RedisCache); ok {
		defer func() { _ = rc.Close() }()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rc.Ping(pingCtx); err != nil {
			// Lookups fall through to DuckDB while Redis is down.
			logging.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("Redis cache unreachable")
		}
		cancel()
	}

	engine, err := cohort.NewEngine(db.Conn(), cfg.Cohort, opts...)
	if err != nil {
		return err
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return err
	}

	handler := api.NewHandler(engine, db, cfg)
	tree.AddAPIService(services.NewHTTPServerService(
		api.NewServer(handler),
		cfg.Server.ShutdownTimeout,
		services.WithReadiness(handler.SetReady),
	))
	if mc, ok := cache.(*cohort.MemoryCache); ok {
		tree.AddDataService(services.NewCachePurgeService(mc, cfg.Cache.PurgeInterval))
	}

	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("Shutdown complete")
	return nil
}

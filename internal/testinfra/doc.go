// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

// Package testinfra provides shared test fixtures and container helpers.
//
// # Fixtures
//
// Score fixtures describe scores rows compactly. NewDataset commits them as
// parquet shards under t.TempDir(), and NewWarehouse runs the full transform
// into an in-memory DuckDB database:
//
//	db := testinfra.NewWarehouse(t, []testinfra.Score{
//	    {ID: 1, User: 1, Beatmap: 10, PP: 200},
//	    {ID: 2, User: 2, Beatmap: 10, PP: 230.5},
//	}, nil)
//
// # Redis Container
//
// Files built with the integration tag start a real Redis server through
// testcontainers-go, used by the shared result cache tests:
//
//	func TestRedisCache(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    redis, err := testinfra.NewRedisContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, redis)
//	    // connect to redis.Addr
//	}
//
// Container tests are skipped when Docker is unavailable. The first run may
// need to pull the image.
package testinfra

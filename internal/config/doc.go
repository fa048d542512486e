// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

/*
Package config loads Cohortmart configuration with koanf.

Sources are layered, later ones winning:

 1. built-in defaults (defaultConfig)
 2. an optional YAML file: $CONFIG_PATH, ./cohortmart.yaml or /etc/cohortmart/config.yaml
 3. environment variables

Every setting can be set through COHORTMART_<SECTION>_<FIELD>, for example
COHORTMART_COHORT_MIN_POPULATION=10. A few short aliases exist for common
deployment knobs:

	DUMP_DIR        ingest.source_dir
	SHARD_DIR       shard.output_dir
	DUCKDB_PATH     warehouse.path
	REDIS_ADDR      cache.redis_addr
	HTTP_PORT       server.port
	LOG_LEVEL       logging.level

Example file:

	ingest:
	  source_dir: /dumps/2026_10_01
	  concurrency: 4
	shard:
	  output_dir: /data/shards
	  compression: zstd
	warehouse:
	  path: /data/cohortmart.duckdb
	cohort:
	  min_population: 5
	cache:
	  backend: redis
	  redis_addr: redis:6379
*/
package config

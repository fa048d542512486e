// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

/*
Package shard materializes parsed dump batches as Parquet shards.

A table is written to <root>/<table>.partial/ and renamed to <root>/<table>/
when the writer is closed, so a failed run never disturbs the last committed
copy. Inside the staging directory each shard goes through the same steps:

  - rows are encoded with arrow-go into part-NNNNNN.parquet.tmp while a
    SHA-256 of the bytes is computed
  - the file is fsynced and renamed into place, then the directory is fsynced
  - manifest.json is rewritten atomically with the new entry

Layout of a committed table:

	scores/
	  manifest.json
	  part-000000.parquet
	  part-000001.parquet

Every shard carries the table columns plus parse_seq, the ordinal of the row
in its source file. VerifyManifest recomputes sizes, hashes and row counts
before a table is loaded by the warehouse.

An optional S3Mirror uploads committed tables to object storage behind a
circuit breaker.
*/
package shard

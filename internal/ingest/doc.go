// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

/*
Package ingest turns a directory of MySQL dump files into committed shard
tables.

Each source file is streamed through a dump.Parser into a shard.Writer. Tables
are processed concurrently up to the configured limit, and a failure in one
table never affects the others: the failing table's staging directory is
discarded and its previously committed shards stay in place.

# Ledger

A Ledger remembers the path, size and modification time of the file every
table was last built from. When a source is unchanged and its committed
manifest still reads back with the recorded row count, the table is reported
as unchanged and not parsed again. WithForce disables the check.

BadgerLedger persists entries in BadgerDB so that the skip survives restarts:

	ledger, err := ingest.OpenBadgerLedger(cfg.Ingest.LedgerPath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	p, err := ingest.NewPipeline(cfg, ingest.WithLedger(ledger))
	if err != nil {
		return err
	}
	res, err := p.RunDir(ctx)

# Mirroring

WithMirror copies each freshly committed table to object storage. Mirror
failures are logged and reported on the TableResult; they never roll back the
local commit.
*/
package ingest

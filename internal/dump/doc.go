// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

/*
Package dump streams multi-row INSERT statements out of relational dump files.

A Parser reads one source file for one known table and yields bounded
batches of typed rows. It never buffers a whole statement: the input is
consumed through a character-level state machine, so memory stays flat no
matter how large a single INSERT is.

# Statement Handling

Recognized:
  - INSERT [IGNORE] INTO <table> [(<columns>)] VALUES (...), (...);
  - CREATE TABLE <table> (...); column order is remembered for later
    inserts that omit a column list.

Everything else (SET, LOCK TABLES, inserts into other tables) is skipped
up to the next statement terminator and counted in Stats.SkippedStatements.

# Malformed Rows

A row that cannot be converted to the table's schema is dropped and
counted in Stats.Malformed. Parsing continues with the next row:

	p := dump.NewParser(r, dump.MustLookup("scores"), dump.DefaultOptions())
	for {
	    batch, err := p.Next(ctx)
	    if errors.Is(err, io.EOF) {
	        break
	    }
	    if err != nil {
	        return err
	    }
	    consume(batch)
	}
	logging.Info().Int64("malformed", p.Malformed()).Msg("parse complete")

# Source Files

Open resolves the table from a file name such as scores.sql.zst and
decompresses gzip, zstd and lz4 sources transparently.
*/
package dump

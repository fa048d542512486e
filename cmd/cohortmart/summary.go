// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package main

import (
	"time"

	"github.com/tomtom215/cohortmart/internal/ingest"
)

// tableSummary is the printed form of one ingested table; the full
// manifest stays on disk.
type tableSummary struct {
	Table             string  `json:"table"`
	Status            string  `json:"status"`
	Rows              int64   `json:"rows"`
	Malformed         int64   `json:"malformed_rows"`
	SkippedStatements int64   `json:"skipped_statements"`
	Truncated         int64   `json:"truncated,omitempty"`
	Shards            int     `json:"shards"`
	Mirrored          bool    `json:"mirrored,omitempty"`
	Seconds           float64 `json:"seconds"`
	Dir               string  `json:"dir,omitempty"`
	Error             string  `json:"error,omitempty"`
}

type ingestSummary struct {
	RunID   string         `json:"run_id"`
	Seconds float64        `json:"seconds"`
	Tables  []tableSummary `json:"tables"`
}

func summarizeIngest(res *ingest.Result) ingestSummary {
	out := ingestSummary{
		RunID:   res.RunID,
		Seconds: res.Duration().Round(time.Millisecond).Seconds(),
		Tables:  make([]tableSummary, 0, len(res.Tables)),
	}
	for _, t := range res.Tables {
		s := tableSummary{
			Table:             t.Table,
			Status:            t.Status,
			Rows:              t.Rows,
			Malformed:         t.Malformed,
			SkippedStatements: t.SkippedStatements,
			Truncated:         t.Truncated,
			Mirrored:          t.Mirrored,
			Seconds:           t.Duration.Round(time.Millisecond).Seconds(),
			Dir:               t.Dir,
			Error:             t.Error,
		}
		if t.Manifest != nil {
			s.Shards = len(t.Manifest.Files)
		}
		out.Tables = append(out.Tables, s)
	}
	return out
}

// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/cohortmart/internal/dump"
	"github.com/tomtom215/cohortmart/internal/shard"
)

// Table outcome statuses.
const (
	StatusIngested  = "ingested"
	StatusUnchanged = "unchanged"
	StatusFailed    = "failed"
)

// TableResult holds the outcome of ingesting one dump file.
type TableResult struct {
	Table  string `json:"table"`
	Source string `json:"source"`
	Status string `json:"status"`

	// Dir is the committed shard directory of the table.
	Dir      string          `json:"dir,omitempty"`
	Manifest *shard.Manifest `json:"manifest,omitempty"`

	Statements        int64 `json:"statements"`
	SkippedStatements int64 `json:"skipped_statements"`
	Rows              int64 `json:"rows"`
	Malformed         int64 `json:"malformed_rows"`
	Bytes             int64 `json:"bytes"`
	Truncated         int64 `json:"truncated,omitempty"`

	Mirrored bool          `json:"mirrored,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
}

func (r *TableResult) applyStats(s dump.Stats) {
	r.Statements = s.Statements
	r.SkippedStatements = s.SkippedStatements
	r.Rows = s.Rows
	r.Malformed = s.Malformed
	r.Bytes = s.Bytes
	r.Truncated = s.Truncated
}

func (r *TableResult) fail(err error) {
	r.Status = StatusFailed
	r.Err = err
	r.Error = err.Error()
}

// RowsPerSecond returns the parse rate of the table.
func (r *TableResult) RowsPerSecond() float64 {
	s := r.Duration.Seconds()
	if s == 0 {
		return 0
	}
	return float64(r.Rows) / s
}

// Result is the outcome of an ingestion run, one entry per source in
// table order.
type Result struct {
	RunID     string        `json:"run_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Tables    []TableResult `json:"tables"`
}

// Duration returns the wall time of the run.
func (r *Result) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// Manifests returns the committed manifest of every table that has one,
// including tables skipped as unchanged.
func (r *Result) Manifests() map[string]*shard.Manifest {
	out := make(map[string]*shard.Manifest)
	for _, t := range r.Tables {
		if t.Manifest != nil {
			out[t.Table] = t.Manifest
		}
	}
	return out
}

// Dirs returns the committed shard directory of every table with a manifest.
func (r *Result) Dirs() map[string]string {
	out := make(map[string]string)
	for _, t := range r.Tables {
		if t.Manifest != nil {
			out[t.Table] = t.Dir
		}
	}
	return out
}

// Err joins the errors of failed tables.
func (r *Result) Err() error {
	var errs []error
	for _, t := range r.Tables {
		if t.Err != nil {
			errs = append(errs, fmt.Errorf("table %s: %w", t.Table, t.Err))
		}
	}
	return errors.Join(errs...)
}

// Failed returns the names of tables whose ingestion failed.
func (r *Result) Failed() []string {
	var out []string
	for _, t := range r.Tables {
		if t.Status == StatusFailed {
			out = append(out, t.Table)
		}
	}
	return out
}

// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/cohortmart/internal/logging"
	"github.com/tomtom215/cohortmart/internal/metrics"
	"github.com/tomtom215/cohortmart/internal/shard"
)

const scoresTable = "scores"

// LayerInfo describes one built table.
type LayerInfo struct {
	Layer       string        `json:"layer"`
	Table       string        `json:"table"`
	Rows        int64         `json:"rows"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

// TransformResult locates every layer a transform produced.
type TransformResult struct {
	DatabasePath string            `json:"database_path"`
	Raw          []LayerInfo       `json:"raw"`
	Layers       []LayerInfo       `json:"layers"`
	Indexes      []string          `json:"indexes,omitempty"`
	Blocked      map[string]string `json:"blocked,omitempty"`
}

// Layer returns the info of a mart or staging layer by table name.
func (r *TransformResult) Layer(table string) (LayerInfo, bool) {
	for _, l := range r.Layers {
		if l.Table == table {
			return l, true
		}
	}
	return LayerInfo{}, false
}

func (r *TransformResult) block(table string, err error) {
	if r.Blocked == nil {
		r.Blocked = make(map[string]string)
	}
	r.Blocked[table] = err.Error()
}

// RunTransform loads every verified manifest into the raw layer and then
// rebuilds staging, best, top-K and user-set layers plus their indexes.
// dirs maps each table to its committed shard directory.
func (db *DB) RunTransform(ctx context.Context, manifests map[string]*shard.Manifest, dirs map[string]string) (*TransformResult, error) {
	res, err := db.LoadRaw(ctx, manifests, dirs)
	if err != nil {
		return res, err
	}
	if _, blocked := res.Blocked[scoresTable]; blocked {
		return res, fmt.Errorf("%w: %s failed verification: %s", ErrTransformBlocked, scoresTable, res.Blocked[scoresTable])
	}
	if err := db.BuildMarts(ctx, res); err != nil {
		return res, err
	}
	return res, nil
}

// LoadRaw verifies each manifest and replaces the raw table of every table
// that passes. Tables that fail verification are reported in Blocked and
// keep their previous raw table.
func (db *DB) LoadRaw(ctx context.Context, manifests map[string]*shard.Manifest, dirs map[string]string) (*TransformResult, error) {
	res := &TransformResult{DatabasePath: db.cfg.Path}

	tables := make([]string, 0, len(manifests))
	for t := range manifests {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		m := manifests[table]
		dir, ok := dirs[table]
		if !ok {
			return res, fmt.Errorf("no shard directory for table %s", table)
		}

		if err := shard.VerifyManifest(dir, m); err != nil {
			if !shard.IsIntegrityError(err) {
				return res, fmt.Errorf("verify %s: %w", table, err)
			}
			res.block(table, err)
			metrics.RecordTransformBlocked(table)
			logging.Error().Err(err).Str("table", table).Msg("Shard verification failed, table blocked until re-ingested")
			continue
		}

		info, err := db.buildLayer(ctx, "raw", RawTable(table), func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, rawLoadSQL(RawTable(table), m.Paths(dir), m.Schema))
			return err
		})
		if err != nil {
			return res, err
		}
		if info.Rows != m.TotalRows {
			return res, fmt.Errorf("%w: %s loaded %d rows, manifest total is %d",
				shard.ErrRowCountMismatch, RawTable(table), info.Rows, m.TotalRows)
		}
		res.Raw = append(res.Raw, info)
	}
	return res, nil
}

// BuildMarts rebuilds staging and mart layers from raw_scores and appends
// their info to res.
func (db *DB) BuildMarts(ctx context.Context, res *TransformResult) error {
	if res == nil {
		return errors.New("nil transform result")
	}
	if res.DatabasePath == "" {
		res.DatabasePath = db.cfg.Path
	}

	ok, err := tableExists(ctx, db.conn, RawTable(scoresTable))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s has never been loaded", ErrTransformBlocked, RawTable(scoresTable))
	}

	steps := []struct {
		layer string
		table string
		build func(tx *sql.Tx) error
	}{
		{"staging", TableStaging, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, stagingSQL(db.cfg.StandardOnly))
			return err
		}},
		{"best", TableBest, db.buildBest(ctx)},
		{"topk", TableTopK, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, topKSQL(db.cfg.TopK))
			return err
		}},
		{"user_sets", TableUserSets, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, userSetsSQL)
			return err
		}},
	}

	for _, s := range steps {
		info, err := db.buildLayer(ctx, s.layer, s.table, s.build)
		if err != nil {
			return err
		}
		fp, err := db.LayerFingerprint(ctx, s.table)
		if err != nil {
			return err
		}
		info.Fingerprint = fp
		res.Layers = append(res.Layers, info)
	}

	if err := db.createIndexes(ctx); err != nil {
		return err
	}
	res.Indexes = []string{IndexBestByBeatmap, IndexBestByUser}
	return nil
}

func (db *DB) buildBest(ctx context.Context) func(tx *sql.Tx) error {
	return func(tx *sql.Tx) error {
		var nulls int64
		if err := tx.QueryRowContext(ctx, nullKeySQL).Scan(&nulls); err != nil {
			return fmt.Errorf("check keys: %w", err)
		}
		if nulls > 0 {
			return fmt.Errorf("%w: %d rows in %s", ErrNullKey, nulls, TableStaging)
		}
		for _, stmt := range indexSQL[:2] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, bestSQL)
		return err
	}
}

func (db *DB) createIndexes(ctx context.Context) error {
	start := time.Now()
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index build: %w", err)
	}
	for _, stmt := range indexSQL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("build indexes: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit indexes: %w", err)
	}
	metrics.RecordTransformLayer("indexes", time.Since(start), 0)
	return nil
}

// buildLayer runs build in a transaction so that a failed layer leaves the
// previous table in place.
func (db *DB) buildLayer(ctx context.Context, layer, table string, build func(tx *sql.Tx) error) (LayerInfo, error) {
	start := time.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return LayerInfo{}, fmt.Errorf("begin %s: %w", table, err)
	}
	if err := build(tx); err != nil {
		_ = tx.Rollback()
		return LayerInfo{}, fmt.Errorf("build %s: %w", table, err)
	}
	rows, err := rowCount(ctx, tx, table)
	if err != nil {
		_ = tx.Rollback()
		return LayerInfo{}, err
	}
	if err := tx.Commit(); err != nil {
		return LayerInfo{}, fmt.Errorf("commit %s: %w", table, err)
	}

	elapsed := time.Since(start)
	metrics.RecordTransformLayer(layer, elapsed, rows)
	logging.Info().
		Str("layer", layer).
		Str("table", table).
		Int64("rows", rows).
		Dur("duration", elapsed).
		Msg("Layer built")

	return LayerInfo{Layer: layer, Table: table, Rows: rows, Duration: elapsed}, nil
}

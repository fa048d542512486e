// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package shard

import (
	"context"
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/tomtom215/cohortmart/internal/dump"
)

const readChunkRows = 64 << 10

// ReadShard loads every row of a shard in file order.
func ReadShard(path string, table *dump.Table) ([]dump.Row, error) {
	rows, _, err := readShard(context.Background(), path, table, false)
	return rows, err
}

// ReadShardSeq loads every row of a shard together with its parse ordinal.
func ReadShardSeq(ctx context.Context, path string, table *dump.Table) ([]dump.Row, []int64, error) {
	return readShard(ctx, path, table, true)
}

// ReadTable loads all shards of a manifest in shard order.
func ReadTable(ctx context.Context, dir string, m *Manifest, table *dump.Table) ([]dump.Row, error) {
	rows := make([]dump.Row, 0, m.TotalRows)
	for _, path := range m.Paths(dir) {
		part, _, err := readShard(ctx, path, table, false)
		if err != nil {
			return nil, err
		}
		rows = append(rows, part...)
	}
	return rows, nil
}

func readShard(ctx context.Context, path string, table *dump.Table, withSeq bool) ([]dump.Row, []int64, error) {
	f, err := os.Open(path) //nolint:gosec // shard paths come from a manifest
	if err != nil {
		return nil, nil, fmt.Errorf("open shard: %w", err)
	}
	defer func() { _ = f.Close() }()

	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(ctx, f, parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, nil, fmt.Errorf("read shard %s: %w", path, err)
	}
	defer tbl.Release()

	tr := array.NewTableReader(tbl, readChunkRows)
	defer tr.Release()

	rows := make([]dump.Row, 0, tbl.NumRows())
	var seqs []int64
	var seqPtr *[]int64
	if withSeq {
		seqs = make([]int64, 0, tbl.NumRows())
		seqPtr = &seqs
	}

	for tr.Next() {
		rows, err = recordRows(table, tr.Record(), rows, seqPtr)
		if err != nil {
			return nil, nil, fmt.Errorf("decode shard %s: %w", path, err)
		}
	}
	if err := tr.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate shard %s: %w", path, err)
	}
	return rows, seqs, nil
}

// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/cohortmart/internal/config"
	"github.com/tomtom215/cohortmart/internal/logging"
)

// MemoryPath opens an in-process database that disappears on Close.
const MemoryPath = ":memory:"

// DB owns the DuckDB handle holding the raw, staging and mart layers.
type DB struct {
	conn *sql.DB
	cfg  config.WarehouseConfig
}

// Open opens or creates the warehouse database.
func Open(cfg *config.WarehouseConfig) (*DB, error) {
	c := config.Default().Warehouse
	if cfg != nil {
		c = *cfg
	}
	cfg = &c

	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 100
	}

	inMemory := cfg.Path == "" || cfg.Path == MemoryPath
	if !inMemory {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	conn, err := sql.Open("duckdb", dsn(cfg, numThreads, inMemory))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(runtime.NumCPU())
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logging.Debug().
		Str("path", cfg.Path).
		Int("threads", numThreads).
		Str("max_memory", cfg.MaxMemory).
		Msg("Warehouse opened")

	return &DB{conn: conn, cfg: *cfg}, nil
}

func dsn(cfg *config.WarehouseConfig, threads int, inMemory bool) string {
	preserveOrder := "true"
	if !cfg.PreserveInsertionOrder {
		preserveOrder = "false"
	}
	accessMode := "read_write"
	if cfg.ReadOnly && !inMemory {
		accessMode = "read_only"
	}
	path := cfg.Path
	if inMemory {
		path = ""
	}

	s := fmt.Sprintf("%s?access_mode=%s&threads=%d&preserve_insertion_order=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		path, accessMode, threads, preserveOrder)
	if cfg.MaxMemory != "" {
		s += "&max_memory=" + cfg.MaxMemory
	}
	return s
}

// Conn returns the underlying SQL handle, shared with the cohort engine.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database path.
func (db *DB) Path() string {
	return db.cfg.Path
}

// Ping checks if the database connection is alive
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// Checkpoint flushes the WAL into the database file.
func (db *DB) Checkpoint(ctx context.Context) error {
	if db.cfg.ReadOnly {
		return nil
	}
	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Close checkpoints and closes the database.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
	}
	cancel()
	return db.conn.Close()
}

// TableExists reports whether a table is present in the main schema.
func (db *DB) TableExists(ctx context.Context, name string) (bool, error) {
	return tableExists(ctx, db.conn, name)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func tableExists(ctx context.Context, q queryRower, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT count(*) FROM duckdb_tables() WHERE schema_name = 'main' AND NOT temporary AND table_name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return n > 0, nil
}

// RowCount returns the number of rows in a table.
func (db *DB) RowCount(ctx context.Context, table string) (int64, error) {
	return rowCount(ctx, db.conn, table)
}

func rowCount(ctx context.Context, q queryRower, table string) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, "SELECT count(*) FROM "+quoteIdent(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

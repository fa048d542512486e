// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Ingest     IngestConfig     `koanf:"ingest"`
	Shard      ShardConfig      `koanf:"shard"`
	Mirror     MirrorConfig     `koanf:"mirror"` // Optional: copy committed tables to S3
	Warehouse  WarehouseConfig  `koanf:"warehouse"`
	Cohort     CohortConfig     `koanf:"cohort"`
	Cache      CacheConfig      `koanf:"cache"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// IngestConfig controls dump discovery and parsing.
type IngestConfig struct {
	// SourceDir holds <table>.sql[.gz|.zst|.lz4] dump files.
	SourceDir string `koanf:"source_dir"`

	// Tables restricts ingestion to these table names. Empty means every
	// registered table found in SourceDir.
	Tables []string `koanf:"tables"`

	// Concurrency is the number of tables ingested at once.
	// Default: 4
	Concurrency int `koanf:"concurrency"`

	// BatchSize is the number of rows per parser batch.
	// Default: 100000
	BatchSize int `koanf:"batch_size"`

	// BufferSize is the read buffer size in bytes.
	// Default: 262144
	BufferSize int `koanf:"buffer_size"`

	// MaxLiteralBytes bounds a single quoted value.
	// Default: 16777216
	MaxLiteralBytes int `koanf:"max_literal_bytes"`

	// LedgerPath is the badger directory recording ingested sources.
	// Empty disables the ledger and every run ingests every source.
	LedgerPath string `koanf:"ledger_path"`

	// ProgressInterval throttles per-table progress log lines.
	// Default: 10s
	ProgressInterval time.Duration `koanf:"progress_interval"`
}

// ShardConfig controls the columnar output.
type ShardConfig struct {
	// OutputDir receives one directory per table.
	OutputDir string `koanf:"output_dir"`

	MaxShardRows int64  `koanf:"max_shard_rows"`
	RowGroupRows int64  `koanf:"row_group_rows"`
	Compression  string `koanf:"compression"` // snappy, zstd, gzip, none
}

// MirrorConfig configures the optional S3 copy of committed tables.
type MirrorConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Bucket          string        `koanf:"bucket"`
	Prefix          string        `koanf:"prefix"`
	Region          string        `koanf:"region"`
	Endpoint        string        `koanf:"endpoint"` // MinIO or LocalStack
	PartSizeMB      int           `koanf:"part_size_mb"`
	Concurrency     int           `koanf:"concurrency"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

// WarehouseConfig holds DuckDB settings for the transform layers.
type WarehouseConfig struct {
	Path                   string `koanf:"path"` // ":memory:" for an in-process database
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"` // 0 = runtime.NumCPU()
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
	ReadOnly               bool   `koanf:"read_only"`

	// TopK is the number of best scores kept per user and speed modifier.
	// Default: 100
	TopK int `koanf:"top_k"`

	// StandardOnly keeps only osu! standard scores in staging.
	// Default: true
	StandardOnly bool `koanf:"standard_only"`
}

// CohortConfig holds query defaults.
type CohortConfig struct {
	MinPopulation      int `koanf:"min_population"`
	MinOverlap         int `koanf:"min_overlap"`
	Limit              int `koanf:"limit"`
	MaxLimit           int `koanf:"max_limit"`
	TempTableThreshold int `koanf:"temp_table_threshold"`

	// QueryTimeout bounds a single cohort query.
	// Default: 30s
	QueryTimeout time.Duration `koanf:"query_timeout"`
}

// CacheConfig selects the recommendation cache backend.
type CacheConfig struct {
	// Backend is none, memory or redis.
	// Default: memory
	Backend string        `koanf:"backend"`
	TTL     time.Duration `koanf:"ttl"`

	// MaxEntries bounds the in-process LRU.
	MaxEntries int `koanf:"max_entries"`

	// PurgeInterval is how often expired in-process entries are removed.
	PurgeInterval time.Duration `koanf:"purge_interval"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPrefix   string `koanf:"redis_prefix"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller adds file:line to every event.
	Caller bool `koanf:"caller"`
}

// SupervisorConfig holds restart policy for supervised services.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

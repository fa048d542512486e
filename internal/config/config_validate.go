// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package config

import (
	"fmt"
	"strings"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateShard(); err != nil {
		return err
	}
	if err := c.validateMirror(); err != nil {
		return err
	}
	if err := c.validateWarehouse(); err != nil {
		return err
	}
	if err := c.validateCohort(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateIngest() error {
	if c.Ingest.Concurrency < 1 {
		return fmt.Errorf("ingest.concurrency must be at least 1, got %d", c.Ingest.Concurrency)
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("ingest.batch_size must be at least 1, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.BufferSize < 4096 {
		return fmt.Errorf("ingest.buffer_size must be at least 4096, got %d", c.Ingest.BufferSize)
	}
	if c.Ingest.MaxLiteralBytes < 1 {
		return fmt.Errorf("ingest.max_literal_bytes must be positive, got %d", c.Ingest.MaxLiteralBytes)
	}
	return nil
}

func (c *Config) validateShard() error {
	if c.Shard.OutputDir == "" {
		return fmt.Errorf("shard.output_dir is required")
	}
	if c.Shard.MaxShardRows < 1 {
		return fmt.Errorf("shard.max_shard_rows must be at least 1, got %d", c.Shard.MaxShardRows)
	}
	if c.Shard.RowGroupRows < 1 {
		return fmt.Errorf("shard.row_group_rows must be at least 1, got %d", c.Shard.RowGroupRows)
	}
	switch strings.ToLower(c.Shard.Compression) {
	case "snappy", "zstd", "gzip", "none":
	default:
		return fmt.Errorf("shard.compression must be snappy, zstd, gzip or none, got %q", c.Shard.Compression)
	}
	return nil
}

func (c *Config) validateMirror() error {
	if !c.Mirror.Enabled {
		return nil
	}
	if c.Mirror.Bucket == "" {
		return fmt.Errorf("mirror.bucket is required when mirror.enabled=true")
	}
	// S3 multipart parts must be at least 5 MiB.
	if c.Mirror.PartSizeMB < 5 {
		return fmt.Errorf("mirror.part_size_mb must be at least 5, got %d", c.Mirror.PartSizeMB)
	}
	return nil
}

func (c *Config) validateWarehouse() error {
	if c.Warehouse.Path == "" {
		return fmt.Errorf("warehouse.path is required")
	}
	if c.Warehouse.Threads < 0 {
		return fmt.Errorf("warehouse.threads cannot be negative")
	}
	if c.Warehouse.TopK < 1 {
		return fmt.Errorf("warehouse.top_k must be at least 1, got %d", c.Warehouse.TopK)
	}
	return nil
}

func (c *Config) validateCohort() error {
	co := c.Cohort
	if co.MinPopulation < 1 {
		return fmt.Errorf("cohort.min_population must be at least 1, got %d", co.MinPopulation)
	}
	if co.MinOverlap < 1 {
		return fmt.Errorf("cohort.min_overlap must be at least 1, got %d", co.MinOverlap)
	}
	if co.Limit < 1 || co.Limit > co.MaxLimit {
		return fmt.Errorf("cohort.limit must be between 1 and max_limit (%d), got %d", co.MaxLimit, co.Limit)
	}
	if co.TempTableThreshold < 0 {
		return fmt.Errorf("cohort.temp_table_threshold cannot be negative")
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case "none", "":
		return nil
	case "memory":
		if c.Cache.MaxEntries < 1 {
			return fmt.Errorf("cache.max_entries must be at least 1 for the memory backend")
		}
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be none, memory or redis, got %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitReqs < 0 {
		return fmt.Errorf("server.rate_limit_reqs cannot be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be trace, debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

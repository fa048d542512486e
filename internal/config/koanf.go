// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"cohortmart.yaml",
	"cohortmart.yml",
	"/etc/cohortmart/config.yaml",
	"/etc/cohortmart/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Default returns a Config with every default applied.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Ingest: IngestConfig{
			SourceDir:        "./dumps",
			Concurrency:      4,
			BatchSize:        100_000,
			BufferSize:       256 << 10,
			MaxLiteralBytes:  16 << 20,
			LedgerPath:       "./data/ledger",
			ProgressInterval: 10 * time.Second,
		},
		Shard: ShardConfig{
			OutputDir:    "./data/shards",
			MaxShardRows: 2_000_000,
			RowGroupRows: 500_000,
			Compression:  "snappy",
		},
		Mirror: MirrorConfig{
			Enabled:         false,
			PartSizeMB:      16,
			Concurrency:     4,
			BreakerFailures: 3,
			BreakerTimeout:  30 * time.Second,
		},
		Warehouse: WarehouseConfig{
			Path:                   "./data/cohortmart.duckdb",
			MaxMemory:              "2GB",
			Threads:                0,
			PreserveInsertionOrder: true,
			TopK:                   100,
			StandardOnly:           true,
		},
		Cohort: CohortConfig{
			MinPopulation:      5,
			MinOverlap:         1,
			Limit:              100,
			MaxLimit:           1000,
			TempTableThreshold: 1000,
			QueryTimeout:       30 * time.Second,
		},
		Cache: CacheConfig{
			Backend:       "memory",
			TTL:           10 * time.Minute,
			MaxEntries:    10_000,
			PurgeInterval: time.Minute,
			RedisAddr:     "127.0.0.1:6379",
			RedisPrefix:   "cohortmart:",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8087,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Load reads configuration from, in increasing precedence, built-in
// defaults, an optional YAML file and environment variables, then
// validates the result.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file. An empty path skips the
// file layer.
func LoadFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// COHORTMART_SHARD_OUTPUT_DIR -> shard.output_dir, plus the short
	// aliases in envMappings.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first config file found, or "" if none.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"ingest.tables",
	"server.cors_origins",
}

// processSliceFields splits comma-separated env values for slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

const envPrefix = "cohortmart_"

// envMappings maps short environment names to config paths.
var envMappings = map[string]string{
	"dump_dir":      "ingest.source_dir",
	"ingest_tables": "ingest.tables",
	"ledger_path":   "ingest.ledger_path",

	"shard_dir":         "shard.output_dir",
	"shard_compression": "shard.compression",

	"s3_bucket":   "mirror.bucket",
	"s3_prefix":   "mirror.prefix",
	"s3_region":   "mirror.region",
	"s3_endpoint": "mirror.endpoint",

	"duckdb_path":       "warehouse.path",
	"duckdb_max_memory": "warehouse.max_memory",
	"duckdb_threads":    "warehouse.threads",

	"redis_addr":     "cache.redis_addr",
	"redis_password": "cache.redis_password",
	"redis_db":       "cache.redis_db",
	"cache_backend":  "cache.backend",

	"http_host":    "server.host",
	"http_port":    "server.port",
	"cors_origins": "server.cors_origins",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

var sections = []string{
	"ingest", "shard", "mirror", "warehouse", "cohort",
	"cache", "server", "logging", "supervisor",
}

// envTransformFunc maps an environment variable to a koanf path. Unknown
// variables map to "" and are ignored.
//
// Examples:
//   - DUCKDB_PATH -> warehouse.path
//   - COHORTMART_COHORT_MIN_POPULATION -> cohort.min_population
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	if path, ok := envMappings[key]; ok {
		return path
	}

	rest, ok := strings.CutPrefix(key, envPrefix)
	if !ok {
		return ""
	}
	for _, section := range sections {
		if field, ok := strings.CutPrefix(rest, section+"_"); ok && field != "" {
			return section + "." + field
		}
	}
	return ""
}

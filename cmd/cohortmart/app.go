// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cohortmart/internal/config"
	"github.com/tomtom215/cohortmart/internal/dump"
	"github.com/tomtom215/cohortmart/internal/ingest"
	"github.com/tomtom215/cohortmart/internal/logging"
	"github.com/tomtom215/cohortmart/internal/shard"
)

// app holds the global flags and the loaded configuration.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	sourceDir  string
	outputDir  string
	duckdbPath string

	cfg *config.Config
}

// load reads the configuration, applies flag overrides and initializes
// logging.
func (a *app) load() error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if a.sourceDir != "" {
		cfg.Ingest.SourceDir = a.sourceDir
	}
	if a.outputDir != "" {
		cfg.Shard.OutputDir = a.outputDir
	}
	if a.duckdbPath != "" {
		cfg.Warehouse.Path = a.duckdbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	a.cfg = cfg
	return nil
}

// newPipeline builds the ingestion pipeline with the configured ledger and
// mirror. The returned function releases the ledger.
func (a *app) newPipeline(ctx context.Context, force bool) (*ingest.Pipeline, func(), error) {
	var opts []ingest.Option
	cleanup := func() {}

	if a.cfg.Mirror.Enabled {
		m := a.cfg.Mirror
		mirror, err := shard.NewS3Mirror(ctx, shard.MirrorOptions{
			Bucket:          m.Bucket,
			Prefix:          m.Prefix,
			Region:          m.Region,
			Endpoint:        m.Endpoint,
			PartSize:        int64(m.PartSizeMB) << 20,
			Concurrency:     m.Concurrency,
			BreakerFailures: m.BreakerFailures,
			BreakerTimeout:  m.BreakerTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, ingest.WithMirror(mirror))
	}

	if a.cfg.Ingest.LedgerPath != "" {
		ledger, err := ingest.OpenBadgerLedger(a.cfg.Ingest.LedgerPath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, ingest.WithLedger(ledger))
		cleanup = func() {
			if err := ledger.Close(); err != nil {
				logging.Warn().Err(err).Msg("Failed to close ledger")
			}
		}
	}
	opts = append(opts, ingest.WithForce(force))

	p, err := ingest.NewPipeline(a.cfg, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return p, cleanup, nil
}

// committedTables reads the manifest of every registered table committed
// under root. Tables that were never ingested are skipped.
func committedTables(root string, only []string) (map[string]*shard.Manifest, map[string]string, error) {
	tables := dump.Tables()
	if len(only) > 0 {
		tables = tables[:0:0]
		for _, name := range only {
			t, err := dump.Lookup(name)
			if err != nil {
				return nil, nil, err
			}
			tables = append(tables, t)
		}
	}

	manifests := make(map[string]*shard.Manifest)
	dirs := make(map[string]string)
	for _, t := range tables {
		dir := shard.TableDir(root, t.Name)
		m, err := shard.ReadManifest(dir)
		if errors.Is(err, fs.ErrNotExist) {
			if len(only) > 0 {
				return nil, nil, fmt.Errorf("table %s has no committed shards in %s", t.Name, root)
			}
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		manifests[t.Name] = m
		dirs[t.Name] = dir
	}
	return manifests, dirs, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

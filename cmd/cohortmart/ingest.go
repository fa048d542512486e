// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package main

import (
	"github.com/spf13/cobra"

	"github.com/tomtom215/cohortmart/internal/warehouse"
)

func newIngestCommand(a *app) *cobra.Command {
	var (
		tables []string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Parse dump files into parquet shard tables",
		Long: `Parse every <table>.sql[.gz|.zst|.lz4] file of the source directory and
materialize it as parquet shards plus a manifest. Tables are processed
concurrently; a failing table does not stop the others and keeps its
previously committed shards. Sources recorded in the ledger as unchanged
are skipped unless --force is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(tables) > 0 {
				a.cfg.Ingest.Tables = tables
			}
			p, cleanup, err := a.newPipeline(cmd.Context(), force)
			if err != nil {
				return err
			}
			defer cleanup()

			res, runErr := p.RunDir(cmd.Context())
			if res != nil {
				if err := printJSON(cmd.OutOrStdout(), summarizeIngest(res)); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringSliceVarP(&tables, "tables", "t", nil, "Only ingest these tables")
	cmd.Flags().BoolVar(&force, "force", false, "Re-ingest sources the ledger marks as unchanged")
	return cmd
}

func newTransformCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "transform",
		Short: "Load committed shards into DuckDB and rebuild the mart layers",
		Long: `Verify the manifest of every committed shard table, replace its raw
table and rebuild the staging, best, top-K and user-set layers. Tables
that fail verification are reported as blocked and keep their previous
raw table.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manifests, dirs, err := committedTables(a.cfg.Shard.OutputDir, nil)
			if err != nil {
				return err
			}

			db, err := warehouse.Open(&a.cfg.Warehouse)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			res, err := db.RunTransform(cmd.Context(), manifests, dirs)
			if res != nil {
				if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
					return perr
				}
			}
			if err != nil {
				return err
			}
			return db.Checkpoint(cmd.Context())
		},
	}
}

// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

// Package main is the cohortmart command line.
//
// Cohortmart turns osu! database dumps into DuckDB mart tables and answers
// "players who play this beatmap also play" queries against them.
//
// # Commands
//
//	cohortmart ingest                  parse dumps into parquet shards
//	cohortmart transform               load shards and rebuild the marts
//	cohortmart run --phase all         ingest and transform in one go
//	cohortmart serve                   HTTP API under a supervisor tree
//	cohortmart stats <beatmap_id>      cohort size and pp distribution
//	cohortmart recommend <beatmap_id>  ranked beatmap variants
//	cohortmart manifest verify         check committed shards
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Command line flags (--source-dir, --output-dir, --duckdb, --log-level)
//   - Environment variables (COHORTMART_<SECTION>_<KEY>, DUCKDB_PATH, ...)
//   - Config file (--config, CONFIG_PATH or ./config.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the running command. Ingestion discards the
// staging shards of unfinished tables; serve drains in-flight requests.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/cohortmart/internal/api"
	"github.com/tomtom215/cohortmart/internal/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		logging.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}
	api.Version = version

	root := &cobra.Command{
		Use:           "cohortmart",
		Short:         "Dump ingestion and cohort recommendation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Path to a YAML config file")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format (json, console)")
	flags.StringVar(&a.sourceDir, "source-dir", "", "Directory holding <table>.sql[.gz|.zst|.lz4] dumps")
	flags.StringVar(&a.outputDir, "output-dir", "", "Shard output directory")
	flags.StringVar(&a.duckdbPath, "duckdb", "", "DuckDB database file")

	root.AddCommand(
		newIngestCommand(a),
		newTransformCommand(a),
		newRunCommand(a),
		newServeCommand(a),
		newStatsCommand(a),
		newRecommendCommand(a),
		newManifestCommand(a),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "cohortmart %s (%s, %s/%s)\n",
					version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			},
		},
	)
	return root
}

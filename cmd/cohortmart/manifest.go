// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tomtom215/cohortmart/internal/shard"
)

type verifyResult struct {
	Table string `json:"table"`
	Dir   string `json:"dir"`
	Rows  int64  `json:"rows"`
	Files int    `json:"files"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func newManifestCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect committed shard manifests",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify [table...]",
		Short: "Check every shard against its manifest size, hash and row count",
		RunE: func(cmd *cobra.Command, args []string) error {
			manifests, dirs, err := committedTables(a.cfg.Shard.OutputDir, args)
			if err != nil {
				return err
			}
			tables := make([]string, 0, len(manifests))
			for t := range manifests {
				tables = append(tables, t)
			}
			sort.Strings(tables)

			results := make([]verifyResult, 0, len(tables))
			failed := 0
			for _, t := range tables {
				m := manifests[t]
				r := verifyResult{Table: t, Dir: dirs[t], Rows: m.TotalRows, Files: len(m.Files), OK: true}
				if err := shard.VerifyManifest(dirs[t], m); err != nil {
					r.OK = false
					r.Error = err.Error()
					failed++
				}
				results = append(results, r)
			}
			if err := printJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d tables failed verification", failed, len(tables))
			}
			return nil
		},
	})
	return cmd
}

// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/cohortmart/internal/dump"
	"github.com/tomtom215/cohortmart/internal/ingest"
	"github.com/tomtom215/cohortmart/internal/logging"
	"github.com/tomtom215/cohortmart/internal/shard"
	"github.com/tomtom215/cohortmart/internal/warehouse"
)

// Pipeline phases, in execution order.
const (
	phaseBronze = "bronze" // parse and materialize shards
	phaseSilver = "silver" // load shards into raw tables
	phaseGold   = "gold"   // staging, marts and indexes
	phaseAll    = "all"
)

// parsePhases expands a --phase value into the phases to run.
func parsePhases(s string) ([]string, error) {
	switch strings.ToLower(s) {
	case phaseAll, "":
		return []string{phaseBronze, phaseSilver, phaseGold}, nil
	case phaseBronze, phaseSilver, phaseGold:
		return []string{strings.ToLower(s)}, nil
	default:
		return nil, fmt.Errorf("unknown phase %q, want bronze, silver, gold or all", s)
	}
}

type phaseTiming struct {
	Phase   string  `json:"phase"`
	Seconds float64 `json:"seconds"`
	Error   string  `json:"error,omitempty"`
}

type runReport struct {
	Phases    []phaseTiming              `json:"phases"`
	Ingest    *ingestSummary             `json:"ingest,omitempty"`
	Transform *warehouse.TransformResult `json:"transform,omitempty"`
}

// plannedSource is a dump file the bronze phase would ingest.
type plannedSource struct {
	Table       string `json:"table"`
	Path        string `json:"path"`
	Compression string `json:"compression"`
	SizeBytes   int64  `json:"size_bytes"`
}

// plannedTable is a committed shard table the silver phase would load.
type plannedTable struct {
	Table string `json:"table"`
	Dir   string `json:"dir"`
	Rows  int64  `json:"rows"`
	Files int    `json:"files"`
}

type runPlan struct {
	Phases  []string        `json:"phases"`
	Sources []plannedSource `json:"sources,omitempty"`
	Load    []plannedTable  `json:"load,omitempty"`
	Layers  []string        `json:"layers,omitempty"`
}

func newRunCommand(a *app) *cobra.Command {
	var (
		phase  string
		dryRun bool
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run pipeline phases end to end",
		Long: `Run one or all pipeline phases:

  bronze  parse dumps and materialize parquet shards
  silver  verify manifests and load shards into raw tables
  gold    rebuild staging, best, top-K and user-set layers plus indexes

With --dry-run the phases are planned and printed without writing anything.`,
		Example: `  cohortmart run --phase all
  cohortmart run --phase gold --duckdb ./data/cohortmart.duckdb
  cohortmart run --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			phases, err := parsePhases(phase)
			if err != nil {
				return err
			}
			if dryRun {
				plan, err := a.plan(phases)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), plan)
			}

			report, err := a.runPhases(cmd.Context(), phases, force)
			if report != nil {
				if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&phase, "phase", "p", phaseAll, "Phase to run: bronze, silver, gold or all")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the plan without running it")
	cmd.Flags().BoolVar(&force, "force", false, "Re-ingest sources the ledger marks as unchanged")
	return cmd
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// plan lists what each phase would touch.
func (a *app) plan(phases []string) (*runPlan, error) {
	plan := &runPlan{Phases: phases}

	if contains(phases, phaseBronze) {
		p, err := ingest.NewPipeline(a.cfg)
		if err != nil {
			return nil, err
		}
		sources, err := p.Sources()
		if err != nil {
			return nil, err
		}
		for _, s := range sources {
			plan.Sources = append(plan.Sources, plannedSource{
				Table:       s.Table.Name,
				Path:        s.Path,
				Compression: string(s.Compression),
				SizeBytes:   s.Size,
			})
		}
	}

	if contains(phases, phaseSilver) {
		manifests, dirs, err := committedTables(a.cfg.Shard.OutputDir, nil)
		if err != nil {
			return nil, err
		}
		// Tables the bronze phase is about to commit are loaded too.
		for _, s := range plan.Sources {
			if _, ok := manifests[s.Table]; !ok {
				manifests[s.Table] = &shard.Manifest{TableName: s.Table}
				dirs[s.Table] = shard.TableDir(a.cfg.Shard.OutputDir, s.Table)
			}
		}
		for _, t := range dump.Tables() {
			m, ok := manifests[t.Name]
			if !ok {
				continue
			}
			plan.Load = append(plan.Load, plannedTable{
				Table: t.Name,
				Dir:   dirs[t.Name],
				Rows:  m.TotalRows,
				Files: len(m.Files),
			})
		}
	}

	if contains(phases, phaseGold) {
		plan.Layers = []string{warehouse.TableStaging, warehouse.TableBest, warehouse.TableTopK, warehouse.TableUserSets}
	}
	return plan, nil
}

// runPhases executes phases in order and records their timings. A bronze
// phase with failed tables still hands its committed tables to silver; the
// failures are returned at the end.
func (a *app) runPhases(ctx context.Context, phases []string, force bool) (*runReport, error) {
	report := &runReport{}
	var (
		errs      []error
		manifests map[string]*shard.Manifest
		dirs      map[string]string
		tres      *warehouse.TransformResult
		db        *warehouse.DB
	)
	defer func() {
		if db != nil {
			if err := db.Close(); err != nil {
				logging.Warn().Err(err).Msg("Failed to close warehouse")
			}
		}
	}()

	timed := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		t := phaseTiming{Phase: name, Seconds: time.Since(start).Round(time.Millisecond).Seconds()}
		ev := logging.Info()
		if err != nil {
			t.Error = err.Error()
			ev = logging.Error().Err(err)
		}
		ev.Str("phase", name).Float64("seconds", t.Seconds).Msg("Phase finished")
		report.Phases = append(report.Phases, t)
		return err
	}

	openDB := func() error {
		if db != nil {
			return nil
		}
		var err error
		db, err = warehouse.Open(&a.cfg.Warehouse)
		return err
	}

	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return report, errors.Join(append(errs, err)...)
		}

		var err error
		switch phase {
		case phaseBronze:
			err = timed(phaseBronze, func() error {
				p, cleanup, err := a.newPipeline(ctx, force)
				if err != nil {
					return err
				}
				defer cleanup()

				res, err := p.RunDir(ctx)
				if res != nil {
					s := summarizeIngest(res)
					report.Ingest = &s
					manifests, dirs = res.Manifests(), res.Dirs()
				}
				return err
			})
			if err != nil && manifests == nil {
				return report, err
			}
			if err != nil {
				errs = append(errs, err)
				err = nil
			}

		case phaseSilver:
			err = timed(phaseSilver, func() error {
				if manifests == nil {
					var err error
					if manifests, dirs, err = committedTables(a.cfg.Shard.OutputDir, nil); err != nil {
						return err
					}
				}
				if err := openDB(); err != nil {
					return err
				}
				var err error
				tres, err = db.LoadRaw(ctx, manifests, dirs)
				report.Transform = tres
				return err
			})

		case phaseGold:
			err = timed(phaseGold, func() error {
				if err := openDB(); err != nil {
					return err
				}
				if tres == nil {
					tres = &warehouse.TransformResult{}
				}
				if _, blocked := tres.Blocked["scores"]; blocked {
					return fmt.Errorf("%w: scores failed verification: %s", warehouse.ErrTransformBlocked, tres.Blocked["scores"])
				}
				if err := db.BuildMarts(ctx, tres); err != nil {
					return err
				}
				report.Transform = tres
				return db.Checkpoint(ctx)
			})
		}
		if err != nil {
			return report, errors.Join(append(errs, err)...)
		}
	}
	return report, errors.Join(errs...)
}

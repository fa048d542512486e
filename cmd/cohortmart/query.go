// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tomtom215/cohortmart/internal/cohort"
	"github.com/tomtom215/cohortmart/internal/warehouse"
)

// queryFlags are the cohort selection flags shared by stats and recommend.
type queryFlags struct {
	mods          string
	lower         float64
	upper         float64
	minPopulation int
	minOverlap    int
	limit         int
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mods, "mods", "", `Variant mods key such as "DT,HD"; empty selects no-mod plays (default: every variant)`)
	cmd.Flags().Float64Var(&f.lower, "lower", cohort.DefaultLower, "Lower pp bound, inclusive")
	cmd.Flags().Float64Var(&f.upper, "upper", 0, "Upper pp bound, inclusive (default: unbounded)")
}

// query builds the engine query from the positional beatmap id and the
// flags the user set.
func (f *queryFlags) query(cmd *cobra.Command, arg string) (cohort.Query, error) {
	seed, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return cohort.Query{}, fmt.Errorf("beatmap id must be an integer, got %q", arg)
	}
	q := cohort.Query{
		Seed:          seed,
		MinPopulation: f.minPopulation,
		MinOverlap:    f.minOverlap,
		Limit:         f.limit,
	}
	if cmd.Flags().Changed("mods") {
		q.Variant = cohort.Variant(f.mods)
	}
	if cmd.Flags().Changed("lower") {
		lower := f.lower
		q.Range.Lower = &lower
	}
	if cmd.Flags().Changed("upper") {
		upper := f.upper
		q.Range.Upper = &upper
	}
	return q, nil
}

// withEngine opens the warehouse, runs fn and closes it again.
func (a *app) withEngine(fn func(e *cohort.Engine) error) error {
	db, err := warehouse.Open(&a.cfg.Warehouse)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	e, err := cohort.NewEngine(db.Conn(), a.cfg.Cohort)
	if err != nil {
		return err
	}
	return fn(e)
}

func newStatsCommand(a *app) *cobra.Command {
	f := &queryFlags{}
	var members bool
	cmd := &cobra.Command{
		Use:   "stats <beatmap_id>",
		Short: "Print the cohort size and pp distribution of a beatmap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := f.query(cmd, args[0])
			if err != nil {
				return err
			}
			return a.withEngine(func(e *cohort.Engine) error {
				if members {
					c, err := e.ExtractCohort(cmd.Context(), q)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), c)
				}
				stats, err := e.CohortStats(cmd.Context(), q)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&members, "members", false, "Print the cohort members instead of the summary")
	return cmd
}

func newRecommendCommand(a *app) *cobra.Command {
	f := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "recommend <beatmap_id>",
		Short: "Print beatmap variants popular with the cohort of a beatmap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := f.query(cmd, args[0])
			if err != nil {
				return err
			}
			return a.withEngine(func(e *cohort.Engine) error {
				recs, err := e.Recommend(cmd.Context(), q)
				if err != nil {
					return err
				}
				if recs == nil {
					recs = []cohort.Recommendation{}
				}
				return printJSON(cmd.OutOrStdout(), recs)
			})
		},
	}
	f.register(cmd)
	cmd.Flags().IntVar(&f.minPopulation, "min-population", 0, "Minimum candidate population (default: cohort.min_population)")
	cmd.Flags().IntVar(&f.minOverlap, "min-overlap", 0, "Minimum cohort overlap (default: cohort.min_overlap)")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, "Maximum results (default: cohort.limit)")
	return cmd
}

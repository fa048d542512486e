// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package cohort_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/tomtom215/cohortmart/internal/cohort"
	"github.com/tomtom215/cohortmart/internal/config"
	"github.com/tomtom215/cohortmart/internal/dump"
	"github.com/tomtom215/cohortmart/internal/testinfra"
)

type play struct {
	user, beatmap int64
	pp            float64
	mods          []string
}

func scores(plays ...play) []testinfra.Score {
	out := make([]testinfra.Score, len(plays))
	for i, p := range plays {
		out[i] = testinfra.Score{ID: int64(i + 1), User: p.user, Beatmap: p.beatmap, PP: p.pp, Mods: p.mods}
	}
	return out
}

func newEngine(t *testing.T, s []testinfra.Score, extra map[string][]dump.Row, opts ...cohort.Option) *cohort.Engine {
	t.Helper()
	db := testinfra.NewWarehouse(t, s, extra)
	e, err := cohort.NewEngine(db.Conn(), config.Default().Cohort, opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

var scenario = scores(
	play{user: 1, beatmap: 100, pp: 250.5},
	play{user: 2, beatmap: 100, pp: 180.0},
	play{user: 1, beatmap: 200, pp: 300.0},
	play{user: 2, beatmap: 200, pp: 120.0},
)

func TestEngine_Scenario(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, scenario, nil)

	stats, err := e.CohortStats(ctx, cohort.Query{Seed: 100, Range: cohort.AtLeast(0)})
	if err != nil {
		t.Fatalf("CohortStats: %v", err)
	}
	if stats.Size != 2 || stats.Mean != 215.25 || stats.Median != 215.25 {
		t.Errorf("stats = %+v, want size 2, mean 215.25, median 215.25", stats)
	}
	if stats.Min != 180 || stats.Max != 250.5 {
		t.Errorf("min/max = %v/%v, want 180/250.5", stats.Min, stats.Max)
	}

	recs, err := e.Recommend(ctx, cohort.Query{Seed: 100, MinPopulation: 1})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1: %+v", len(recs), recs)
	}
	if recs[0].BeatmapID != 200 || recs[0].Overlap != 2 || recs[0].Population != 2 {
		t.Errorf("recommendation = %+v, want beatmap 200 with overlap 2", recs[0])
	}
	if recs[0].Novelty != 0 {
		t.Errorf("novelty = %v, want 0", recs[0].Novelty)
	}
	if recs[0].AvgPP != 210 {
		t.Errorf("avg_pp = %v, want 210", recs[0].AvgPP)
	}
}

func TestEngine_UnknownSeed(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, scenario, nil)

	_, err := e.CohortStats(ctx, cohort.Query{Seed: 999})
	if !errors.Is(err, cohort.ErrNotFound) {
		t.Errorf("CohortStats err = %v, want ErrNotFound", err)
	}

	_, err = e.CohortStats(ctx, cohort.Query{Seed: 100, Variant: cohort.Variant("DT")})
	if !errors.Is(err, cohort.ErrNotFound) {
		t.Errorf("CohortStats with absent variant err = %v, want ErrNotFound", err)
	}

	recs, err := e.Recommend(ctx, cohort.Query{Seed: 999, MinPopulation: 1})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Errorf("recommendations = %#v, want empty list", recs)
	}
}

func TestEngine_EmptyCohort(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, scenario, nil)

	q := cohort.Query{Seed: 100, Range: cohort.Between(400, 500), MinPopulation: 1}
	stats, err := e.CohortStats(ctx, q)
	if err != nil {
		t.Fatalf("CohortStats: %v", err)
	}
	if stats.Size != 0 {
		t.Errorf("size = %d, want 0", stats.Size)
	}

	recs, err := e.Recommend(ctx, q)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("recommendations = %+v, want none", recs)
	}
}

func TestEngine_ExtractCohort(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, scores(
		play{user: 1, beatmap: 100, pp: 250},
		play{user: 1, beatmap: 100, pp: 320, mods: []string{"DT"}},
		play{user: 2, beatmap: 100, pp: 180},
		play{user: 3, beatmap: 100, pp: 90, mods: []string{"HD"}},
		play{user: 4, beatmap: 101, pp: 500},
	), nil)

	tests := []struct {
		name  string
		query cohort.Query
		want  []cohort.Member
	}{
		{
			name:  "unfiltered is the whole population",
			query: cohort.Query{Seed: 100},
			want:  []cohort.Member{{UserID: 1, PP: 320}, {UserID: 2, PP: 180}, {UserID: 3, PP: 90}},
		},
		{
			name:  "range applies to the best variant",
			query: cohort.Query{Seed: 100, Range: cohort.Between(100, 300)},
			want:  []cohort.Member{{UserID: 2, PP: 180}},
		},
		{
			name:  "no-mod variant",
			query: cohort.Query{Seed: 100, Variant: cohort.Variant("")},
			want:  []cohort.Member{{UserID: 1, PP: 250}, {UserID: 2, PP: 180}},
		},
		{
			name:  "single variant",
			query: cohort.Query{Seed: 100, Variant: cohort.Variant("DT")},
			want:  []cohort.Member{{UserID: 1, PP: 320}},
		},
		{
			name:  "inclusive bounds",
			query: cohort.Query{Seed: 100, Range: cohort.Between(90, 180)},
			want:  []cohort.Member{{UserID: 2, PP: 180}, {UserID: 3, PP: 90}},
		},
		{
			name:  "unknown seed",
			query: cohort.Query{Seed: 5},
			want:  []cohort.Member{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := e.ExtractCohort(ctx, tt.query)
			if err != nil {
				t.Fatalf("ExtractCohort: %v", err)
			}
			if !reflect.DeepEqual(c.Members, tt.want) {
				t.Errorf("members = %+v, want %+v", c.Members, tt.want)
			}
		})
	}
}

// rankingScores seeds beatmap 100 with users 1-4 and candidates whose order
// exercises every tie-break.
func rankingScores() []testinfra.Score {
	var plays []play
	for u := int64(1); u <= 4; u++ {
		plays = append(plays, play{user: u, beatmap: 100, pp: 200})
	}
	for _, u := range []int64{1, 2, 3, 7} {
		plays = append(plays, play{user: u, beatmap: 200, pp: 100})
	}
	for _, u := range []int64{1, 2, 3} {
		plays = append(plays,
			play{user: u, beatmap: 300, pp: 150},
			play{user: u, beatmap: 300, pp: 150, mods: []string{"HD"}},
			play{user: u, beatmap: 500, pp: 150, mods: []string{"DT"}},
		)
	}
	for _, u := range []int64{1, 2} {
		plays = append(plays, play{user: u, beatmap: 400, pp: 500})
	}
	for _, u := range []int64{5, 6} {
		plays = append(plays, play{user: u, beatmap: 600, pp: 900})
	}
	return scores(plays...)
}

type key struct {
	beatmap int64
	mods    string
}

func keys(recs []cohort.Recommendation) []key {
	out := make([]key, len(recs))
	for i, r := range recs {
		out[i] = key{r.BeatmapID, r.ModsKey}
	}
	return out
}

func TestEngine_RecommendOrdering(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, rankingScores(), nil)

	tests := []struct {
		name  string
		query cohort.Query
		want  []key
	}{
		{
			name:  "full ranking",
			query: cohort.Query{Seed: 100, MinPopulation: 1},
			want:  []key{{300, ""}, {300, "HD"}, {500, "DT"}, {200, ""}, {400, ""}},
		},
		{
			name:  "min overlap",
			query: cohort.Query{Seed: 100, MinPopulation: 1, MinOverlap: 3},
			want:  []key{{300, ""}, {300, "HD"}, {500, "DT"}, {200, ""}},
		},
		{
			name:  "limit",
			query: cohort.Query{Seed: 100, MinPopulation: 1, Limit: 2},
			want:  []key{{300, ""}, {300, "HD"}},
		},
		{
			name:  "min population",
			query: cohort.Query{Seed: 100, MinPopulation: 4},
			want:  []key{{200, ""}},
		},
		{
			name:  "seed excluded across variants",
			query: cohort.Query{Seed: 300, Variant: cohort.Variant("HD"), MinPopulation: 1},
			want:  []key{{100, ""}, {500, "DT"}, {200, ""}, {400, ""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := e.Recommend(ctx, tt.query)
			if err != nil {
				t.Fatalf("Recommend: %v", err)
			}
			if got := keys(recs); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngine_RecommendNovelty(t *testing.T) {
	e := newEngine(t, rankingScores(), nil)
	recs, err := e.Recommend(context.Background(), cohort.Query{Seed: 100, MinPopulation: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if recs[0].Overlap != 3 || recs[0].Population != 4 || math.Abs(recs[0].Novelty-0.25) > 1e-12 {
		t.Errorf("recommendation = %+v, want overlap 3 of 4, novelty 0.25", recs[0])
	}
}

func TestEngine_RecommendDeterministic(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, rankingScores(), nil)
	q := cohort.Query{Seed: 100, MinPopulation: 1}

	first, err := e.Recommend(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Recommend(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ:\n%+v\n%+v", first, second)
	}
}

func TestEngine_TempTableMatchesInline(t *testing.T) {
	ctx := context.Background()
	db := testinfra.NewWarehouse(t, rankingScores(), nil)

	inline, err := cohort.NewEngine(db.Conn(), config.Default().Cohort)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default().Cohort
	cfg.TempTableThreshold = 1
	pinned, err := cohort.NewEngine(db.Conn(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	q := cohort.Query{Seed: 100, MinPopulation: 1}
	want, err := inline.Recommend(ctx, q)
	if err != nil {
		t.Fatalf("inline Recommend: %v", err)
	}
	got, err := pinned.Recommend(ctx, q)
	if err != nil {
		t.Fatalf("temp table Recommend: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("temp table results differ:\n%+v\n%+v", got, want)
	}

	var leftover int64
	err = db.Conn().QueryRowContext(ctx,
		"SELECT count(*) FROM duckdb_tables() WHERE temporary AND table_name LIKE 'cohort_%'").Scan(&leftover)
	if err != nil {
		t.Fatal(err)
	}
	if leftover != 0 {
		t.Errorf("%d cohort tables left behind", leftover)
	}
}

func TestEngine_RecommendCanceled(t *testing.T) {
	db := testinfra.NewWarehouse(t, rankingScores(), nil)
	cfg := config.Default().Cohort
	cfg.TempTableThreshold = 1
	e, err := cohort.NewEngine(db.Conn(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Recommend(ctx, cohort.Query{Seed: 100, MinPopulation: 1}); err == nil {
		t.Fatal("expected an error from a canceled query")
	}

	recs, err := e.Recommend(context.Background(), cohort.Query{Seed: 100, MinPopulation: 1})
	if err != nil {
		t.Fatalf("Recommend after cancellation: %v", err)
	}
	if len(recs) != 5 {
		t.Errorf("got %d recommendations, want 5", len(recs))
	}
}

func TestEngine_RecommendMetadata(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, rankingScores(), map[string][]dump.Row{
		"beatmaps": {
			testinfra.BeatmapRow(200, 1, "Easy", 2.1),
			testinfra.BeatmapRow(300, 1, "Old", 4.0),
			testinfra.BeatmapRow(300, 1, "Insane", 5.5),
		},
		"beatmapsets": {
			testinfra.BeatmapsetRow(1, "Artist", "Title"),
		},
	})

	recs, err := e.Recommend(ctx, cohort.Query{Seed: 100, MinPopulation: 1})
	if err != nil {
		t.Fatal(err)
	}
	byKey := make(map[key]cohort.Recommendation)
	for _, r := range recs {
		byKey[key{r.BeatmapID, r.ModsKey}] = r
	}

	top := byKey[key{300, ""}]
	if top.Meta == nil || top.Meta.Version == nil || *top.Meta.Version != "Insane" {
		t.Fatalf("metadata of 300 = %+v, want version Insane", top.Meta)
	}
	if top.Meta.Title == nil || *top.Meta.Title != "Title" || top.Meta.Artist == nil || *top.Meta.Artist != "Artist" {
		t.Errorf("set metadata of 300 = %+v", top.Meta)
	}
	if m := byKey[key{200, ""}].Meta; m == nil || m.DifficultyRating == nil || *m.DifficultyRating != 2.1 {
		t.Errorf("metadata of 200 = %+v", m)
	}
	if m := byKey[key{400, ""}].Meta; m != nil {
		t.Errorf("metadata of 400 = %+v, want none", m)
	}
}

func TestEngine_ItemMetadataWithoutRawTables(t *testing.T) {
	e := newEngine(t, scenario, nil)
	meta, err := e.ItemMetadata(context.Background(), []int64{100, 200})
	if err != nil {
		t.Fatal(err)
	}
	if len(meta) != 0 {
		t.Errorf("metadata = %+v, want empty", meta)
	}
}

func TestEngine_RecommendCache(t *testing.T) {
	ctx := context.Background()
	mc := cohort.NewMemoryCache(16, time.Minute)
	e := newEngine(t, scenario, nil, cohort.WithCache(mc))
	q := cohort.Query{Seed: 100, MinPopulation: 1}

	first, err := e.Recommend(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if mc.Len() != 1 {
		t.Fatalf("cache holds %d entries, want 1", mc.Len())
	}
	first[0].Overlap = 99

	second, err := e.Recommend(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if second[0].Overlap != 2 {
		t.Errorf("cached overlap = %d, want 2", second[0].Overlap)
	}

	if _, err := e.Recommend(ctx, cohort.Query{Seed: 100, MinPopulation: 1, Limit: 1}); err != nil {
		t.Fatal(err)
	}
	if mc.Len() != 2 {
		t.Errorf("cache holds %d entries, want 2", mc.Len())
	}
}

func TestEngine_InvalidQuery(t *testing.T) {
	e := newEngine(t, scenario, nil)
	tests := []struct {
		name  string
		query cohort.Query
	}{
		{"inverted range", cohort.Query{Seed: 100, Range: cohort.Between(300, 100)}},
		{"NaN bound", cohort.Query{Seed: 100, Range: cohort.AtLeast(math.NaN())}},
		{"negative limit", cohort.Query{Seed: 100, Limit: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Recommend(context.Background(), tt.query)
			if !errors.Is(err, cohort.ErrInvalidQuery) {
				t.Errorf("err = %v, want ErrInvalidQuery", err)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		pps  []float64
		want cohort.Stats
	}{
		{"empty", nil, cohort.Stats{}},
		{"single", []float64{42}, cohort.Stats{Size: 1, Min: 42, Max: 42, Mean: 42, Median: 42}},
		{"odd", []float64{3, 1, 2}, cohort.Stats{Size: 3, Min: 1, Max: 3, Mean: 2, Median: 2}},
		{"even", []float64{250.5, 180}, cohort.Stats{Size: 2, Min: 180, Max: 250.5, Mean: 215.25, Median: 215.25}},
		{"even unsorted", []float64{10, 40, 20, 30}, cohort.Stats{Size: 4, Min: 10, Max: 40, Mean: 25, Median: 25}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			members := make([]cohort.Member, len(tt.pps))
			for i, pp := range tt.pps {
				members[i] = cohort.Member{UserID: int64(i), PP: pp}
			}
			if got := cohort.Summarize(members); got != tt.want {
				t.Errorf("Summarize = %+v, want %+v", got, tt.want)
			}
		})
	}
}

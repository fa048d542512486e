// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package cohort

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cohortmart/internal/config"
	"github.com/tomtom215/cohortmart/internal/logging"
	"github.com/tomtom215/cohortmart/internal/metrics"
)

// Store is the read side of the warehouse. *sql.DB satisfies it.
type Store interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Conn(ctx context.Context) (*sql.Conn, error)
}

// Engine serves cohort and recommendation queries. It is safe for
// concurrent use.
type Engine struct {
	store  Store
	cfg    config.CohortConfig
	cache  Cache
	logger zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache enables the recommendation cache.
func WithCache(c Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithLogger replaces the component logger.
//
//nolint:gocritic // zerolog loggers are passed by value
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an engine over store. Zero config fields take defaults.
func NewEngine(store Store, cfg config.CohortConfig, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("cohort engine requires a store")
	}

	def := config.Default().Cohort
	if cfg.MinPopulation <= 0 {
		cfg.MinPopulation = def.MinPopulation
	}
	if cfg.MinOverlap <= 0 {
		cfg.MinOverlap = def.MinOverlap
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	if cfg.TempTableThreshold <= 0 {
		cfg.TempTableThreshold = def.TempTableThreshold
	}

	e := &Engine{
		store:  store,
		cfg:    cfg,
		logger: logging.WithComponent("cohort"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// resolved is a query with every default applied.
type resolved struct {
	seed       int64
	variant    *string
	lower      float64
	upper      float64
	minPop     int
	minOverlap int
	limit      int
}

func (r resolved) cacheKey() string {
	v := "*"
	if r.variant != nil {
		v = strconv.Quote(*r.variant)
	}
	return fmt.Sprintf("rec:%d:%s:%g:%g:%d:%d:%d", r.seed, v, r.lower, r.upper, r.minPop, r.minOverlap, r.limit)
}

// resolve applies the engine defaults to q.
func (e *Engine) resolve(q Query) (resolved, error) {
	lower, upper, err := q.Range.Resolve()
	if err != nil {
		return resolved{}, err
	}
	if q.MinPopulation < 0 || q.MinOverlap < 0 || q.Limit < 0 {
		return resolved{}, fmt.Errorf("%w: negative threshold", ErrInvalidQuery)
	}

	r := resolved{
		seed:       q.Seed,
		variant:    q.Variant,
		lower:      lower,
		upper:      upper,
		minPop:     q.MinPopulation,
		minOverlap: q.MinOverlap,
		limit:      q.Limit,
	}
	if r.minPop == 0 {
		r.minPop = e.cfg.MinPopulation
	}
	if r.minOverlap == 0 {
		r.minOverlap = e.cfg.MinOverlap
	}
	if r.minOverlap < 1 {
		r.minOverlap = 1
	}
	if r.limit == 0 {
		r.limit = e.cfg.Limit
	}
	if r.limit > e.cfg.MaxLimit {
		r.limit = e.cfg.MaxLimit
	}
	return r, nil
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.QueryTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.QueryTimeout)
	}
	return context.WithCancel(ctx)
}

// ExtractCohort returns the users of the seed whose best pp lies in the
// query range, ordered by user_id.
func (e *Engine) ExtractCohort(ctx context.Context, q Query) (*Cohort, error) {
	r, err := e.resolve(q)
	if err != nil {
		return nil, err
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	c, err := e.extract(ctx, r)
	metrics.RecordQuery("extract_cohort", time.Since(start), err)
	return c, err
}

func (e *Engine) extract(ctx context.Context, r resolved) (*Cohort, error) {
	var (
		query string
		args  []any
	)
	if r.variant != nil {
		query = `SELECT user_id, pp FROM mart_best_scores
WHERE beatmap_id = ? AND mods_key = ? AND pp BETWEEN ? AND ?
ORDER BY user_id`
		args = []any{r.seed, *r.variant, r.lower, r.upper}
	} else {
		query = `SELECT user_id, max(pp) AS pp FROM mart_best_scores
WHERE beatmap_id = ?
GROUP BY user_id
HAVING max(pp) BETWEEN ? AND ?
ORDER BY user_id`
		args = []any{r.seed, r.lower, r.upper}
	}

	rows, err := e.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("extract cohort of %d: %w", r.seed, err)
	}
	defer func() { _ = rows.Close() }()

	c := &Cohort{Seed: r.seed, Variant: r.variant, Lower: r.lower, Upper: r.upper, Members: []Member{}}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.PP); err != nil {
			return nil, fmt.Errorf("scan cohort member: %w", err)
		}
		c.Members = append(c.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cohort: %w", err)
	}
	return c, nil
}

// seedExists reports whether the seed (and variant) has an ItemUserSet row.
func (e *Engine) seedExists(ctx context.Context, r resolved) (bool, error) {
	query := "SELECT count(*) FROM mart_beatmap_user_sets WHERE beatmap_id = ?"
	args := []any{r.seed}
	if r.variant != nil {
		query += " AND mods_key = ?"
		args = append(args, *r.variant)
	}
	var n int64
	if err := e.store.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("look up seed %d: %w", r.seed, err)
	}
	return n > 0, nil
}

// CohortStats returns the size and pp distribution of the cohort. It
// returns ErrNotFound when the seed has no recorded population; a seed whose
// cohort is empty after range filtering yields size 0.
func (e *Engine) CohortStats(ctx context.Context, q Query) (*Stats, error) {
	r, err := e.resolve(q)
	if err != nil {
		return nil, err
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	stats, err := e.cohortStats(ctx, r)
	metrics.RecordQuery("cohort_stats", time.Since(start), err)
	return stats, err
}

func (e *Engine) cohortStats(ctx context.Context, r resolved) (*Stats, error) {
	ok, err := e.seedExists(ctx, r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: beatmap %d", ErrNotFound, r.seed)
	}

	c, err := e.extract(ctx, r)
	if err != nil {
		return nil, err
	}
	metrics.RecordCohortSize(c.Size())

	s := Summarize(c.Members)
	s.Seed = r.seed
	s.Variant = r.variant
	return &s, nil
}

// Summarize computes the pp distribution of members. The mean is summed in
// ascending order; the median of an even count is the mean of the two
// middle values.
func Summarize(members []Member) Stats {
	if len(members) == 0 {
		return Stats{}
	}
	pps := make([]float64, len(members))
	for i, m := range members {
		pps[i] = m.PP
	}
	sort.Float64s(pps)

	var sum float64
	for _, v := range pps {
		sum += v
	}
	n := len(pps)
	median := pps[n/2]
	if n%2 == 0 {
		median = (pps[n/2-1] + pps[n/2]) / 2
	}
	return Stats{
		Size:   n,
		Min:    pps[0],
		Max:    pps[n-1],
		Mean:   sum / float64(n),
		Median: median,
	}
}

// Recommend ranks beatmap variants by how many cohort users they share.
// An empty cohort or an unknown seed yields an empty list.
func (e *Engine) Recommend(ctx context.Context, q Query) ([]Recommendation, error) {
	r, err := e.resolve(q)
	if err != nil {
		return nil, err
	}

	key := r.cacheKey()
	if e.cache != nil {
		if recs, ok := e.cache.Get(ctx, key); ok {
			metrics.RecordCacheLookup(e.cache.Name(), true)
			return recs, nil
		}
		metrics.RecordCacheLookup(e.cache.Name(), false)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	recs, err := e.recommend(ctx, r)
	elapsed := time.Since(start)
	metrics.RecordQuery("recommend", elapsed, err)
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Int64("seed", r.seed).
		Int("results", len(recs)).
		Dur("duration", elapsed).
		Msg("Recommendations computed")

	if e.cache != nil {
		e.cache.Set(ctx, key, recs)
	}
	return recs, nil
}

func (e *Engine) recommend(ctx context.Context, r resolved) ([]Recommendation, error) {
	c, err := e.extract(ctx, r)
	if err != nil {
		return nil, err
	}
	metrics.RecordCohortSize(c.Size())
	if c.Size() == 0 {
		return []Recommendation{}, nil
	}

	var recs []Recommendation
	if c.Size() > e.cfg.TempTableThreshold {
		recs, err = e.overlapWithTempTable(ctx, r, c.UserIDs())
	} else {
		recs, err = e.overlapInline(ctx, r, c.UserIDs())
	}
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return []Recommendation{}, nil
	}

	ids := make([]int64, 0, len(recs))
	seen := make(map[int64]bool, len(recs))
	for _, rec := range recs {
		if !seen[rec.BeatmapID] {
			seen[rec.BeatmapID] = true
			ids = append(ids, rec.BeatmapID)
		}
	}
	meta, err := e.ItemMetadata(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if m, ok := meta[recs[i].BeatmapID]; ok {
			m := m
			recs[i].Meta = &m
		}
	}
	return recs, nil
}

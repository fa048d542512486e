// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package cohort

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// insertChunk is the number of user ids per INSERT into a cohort table.
const insertChunk = 1000

// overlapSQL ranks candidate variants. filter is either a join against the
// cohort table or an IN list over e.user_id.
func overlapSQL(filter string) string {
	return `WITH exploded AS (
    SELECT beatmap_id, mods_key, unnest(user_ids) AS user_id
    FROM mart_beatmap_user_sets
    WHERE user_count >= ? AND beatmap_id <> ?
),
overlap AS (
    SELECT e.beatmap_id, e.mods_key, count(*) AS overlap_count
    FROM exploded e
    ` + filter + `
    GROUP BY e.beatmap_id, e.mods_key
    HAVING count(*) >= ?
)
SELECT o.beatmap_id, o.mods_key, o.overlap_count, s.user_count, s.avg_pp, s.std_pp, s.median_pp
FROM overlap o
JOIN mart_beatmap_user_sets s ON s.beatmap_id = o.beatmap_id AND s.mods_key = o.mods_key
ORDER BY o.overlap_count DESC, s.avg_pp DESC, o.beatmap_id ASC, o.mods_key ASC
LIMIT ?`
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (e *Engine) overlapInline(ctx context.Context, r resolved, users []int64) ([]Recommendation, error) {
	query := overlapSQL("WHERE e.user_id IN (" + placeholders(len(users)) + ")")

	args := make([]any, 0, len(users)+4)
	args = append(args, r.minPop, r.seed)
	for _, id := range users {
		args = append(args, id)
	}
	args = append(args, r.minOverlap, r.limit)

	rows, err := e.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("rank overlap: %w", err)
	}
	return scanRecommendations(rows)
}

// overlapWithTempTable copies the cohort into a temporary table on a pinned
// connection. The table is visible to that connection only and is dropped
// before the connection returns to the pool.
func (e *Engine) overlapWithTempTable(ctx context.Context, r resolved, users []int64) ([]Recommendation, error) {
	conn, err := e.store.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("pin connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	table := "cohort_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := conn.ExecContext(ctx, "CREATE TEMP TABLE "+table+" (user_id BIGINT PRIMARY KEY)"); err != nil {
		return nil, fmt.Errorf("create cohort table: %w", err)
	}
	defer func() {
		dropCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, dropErr := conn.ExecContext(dropCtx, "DROP TABLE IF EXISTS "+table); dropErr != nil {
			e.logger.Warn().Err(dropErr).Str("table", table).Msg("Failed to drop cohort table")
			// A connection still holding the table must not be reused.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
	}()

	if err := insertCohort(ctx, conn, table, users); err != nil {
		return nil, err
	}

	args := []any{r.minPop, r.seed, r.minOverlap, r.limit}
	rows, err := conn.QueryContext(ctx, overlapSQL("JOIN "+table+" c ON c.user_id = e.user_id"), args...)
	if err != nil {
		return nil, fmt.Errorf("rank overlap: %w", err)
	}
	return scanRecommendations(rows)
}

func insertCohort(ctx context.Context, conn *sql.Conn, table string, users []int64) error {
	for start := 0; start < len(users); start += insertChunk {
		end := min(start+insertChunk, len(users))
		chunk := users[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		values := strings.TrimSuffix(strings.Repeat("(?), ", len(chunk)), ", ")
		if _, err := conn.ExecContext(ctx, "INSERT INTO "+table+" VALUES "+values, args...); err != nil {
			return fmt.Errorf("fill cohort table: %w", err)
		}
	}
	return nil
}

func scanRecommendations(rows *sql.Rows) ([]Recommendation, error) {
	defer func() { _ = rows.Close() }()

	recs := []Recommendation{}
	for rows.Next() {
		var (
			rec Recommendation
			std sql.NullFloat64
		)
		if err := rows.Scan(&rec.BeatmapID, &rec.ModsKey, &rec.Overlap, &rec.Population,
			&rec.AvgPP, &std, &rec.MedianPP); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		if std.Valid {
			v := std.Float64
			rec.StdPP = &v
		}
		rec.Novelty = Novelty(rec.Overlap, rec.Population)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recommendations: %w", err)
	}
	return recs, nil
}

// ItemMetadata returns descriptive data for the given beatmaps from
// raw_beatmaps and raw_beatmapsets. Beatmaps without a row are absent from
// the result; a missing raw_beatmaps table yields an empty map.
func (e *Engine) ItemMetadata(ctx context.Context, ids []int64) (map[int64]ItemMeta, error) {
	out := make(map[int64]ItemMeta, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	hasBeatmaps, err := e.tableExists(ctx, "raw_beatmaps")
	if err != nil {
		return nil, err
	}
	if !hasBeatmaps {
		return out, nil
	}
	hasSets, err := e.tableExists(ctx, "raw_beatmapsets")
	if err != nil {
		return nil, err
	}

	// Later dump rows win over earlier ones for the same key.
	setCols := "NULL::VARCHAR AS artist, NULL::VARCHAR AS title"
	setJoin := ""
	if hasSets {
		setCols = "s.artist, s.title"
		setJoin = `LEFT JOIN (
    SELECT * FROM raw_beatmapsets
    QUALIFY row_number() OVER (PARTITION BY beatmapset_id ORDER BY parse_seq DESC) = 1
) s ON s.beatmapset_id = b.beatmapset_id`
	}
	query := `SELECT b.beatmap_id, b.beatmapset_id, b.version, b.difficultyrating, ` + setCols + `
FROM (
    SELECT * FROM raw_beatmaps
    WHERE beatmap_id IN (` + placeholders(len(ids)) + `)
    QUALIFY row_number() OVER (PARTITION BY beatmap_id ORDER BY parse_seq DESC) = 1
) b
` + setJoin + `
ORDER BY b.beatmap_id`

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := e.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load beatmap metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			m      ItemMeta
			set    sql.NullInt64
			ver    sql.NullString
			stars  sql.NullFloat64
			artist sql.NullString
			title  sql.NullString
		)
		if err := rows.Scan(&m.BeatmapID, &set, &ver, &stars, &artist, &title); err != nil {
			return nil, fmt.Errorf("scan beatmap metadata: %w", err)
		}
		if set.Valid {
			m.BeatmapsetID = &set.Int64
		}
		if ver.Valid {
			m.Version = &ver.String
		}
		if stars.Valid {
			m.DifficultyRating = &stars.Float64
		}
		if artist.Valid {
			m.Artist = &artist.String
		}
		if title.Valid {
			m.Title = &title.String
		}
		out[m.BeatmapID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate beatmap metadata: %w", err)
	}
	return out, nil
}

func (e *Engine) tableExists(ctx context.Context, name string) (bool, error) {
	var n int64
	err := e.store.QueryRowContext(ctx,
		"SELECT count(*) FROM duckdb_tables() WHERE schema_name = 'main' AND NOT temporary AND table_name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return n > 0, nil
}

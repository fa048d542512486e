// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package warehouse

import (
	"fmt"
	"strings"

	"github.com/tomtom215/cohortmart/internal/shard"
)

// Layer table names.
const (
	TableStaging  = "stg_scores"
	TableBest     = "mart_best_scores"
	TableTopK     = "mart_user_topk"
	TableUserSets = "mart_beatmap_user_sets"

	IndexBestByBeatmap = "idx_mart_best_scores_beatmap_lookup"
	IndexBestByUser    = "idx_mart_best_scores_user_lookup"

	rawPrefix = "raw_"
)

// RawTable returns the raw layer table of a dump table.
func RawTable(table string) string {
	return rawPrefix + table
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// rawLoadSQL creates the raw table of a manifest. A manifest without shards
// yields an empty table with the manifest schema.
func rawLoadSQL(table string, paths []string, schema []shard.ColumnSpec) string {
	if len(paths) == 0 {
		cols := make([]string, len(schema))
		for i, c := range schema {
			cols[i] = quoteIdent(c.Name) + " " + c.Type
		}
		return fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", quoteIdent(table), strings.Join(cols, ", "))
	}

	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = quoteLiteral(p)
	}
	return fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM read_parquet([%s]) ORDER BY %s",
		quoteIdent(table), strings.Join(quoted, ", "), shard.SeqColumn)
}

func stagingSQL(standardOnly bool) string {
	filter := "pp IS NOT NULL"
	if standardOnly {
		filter += " AND playmode = 0"
	}
	return `CREATE OR REPLACE TABLE stg_scores AS
SELECT
    id AS score_id,
    user_id,
    beatmap_id,
    score,
    pp,
    playmode,
    mods_key,
    speed_mod,
    parse_seq
FROM raw_scores
WHERE ` + filter + `
ORDER BY parse_seq`
}

const nullKeySQL = `SELECT count(*) FROM stg_scores
WHERE user_id IS NULL OR beatmap_id IS NULL OR mods_key IS NULL`

// Ties on pp go to the score parsed first.
const bestSQL = `CREATE OR REPLACE TABLE mart_best_scores AS
SELECT score_id, user_id, beatmap_id, mods_key, speed_mod, pp, parse_seq
FROM (
    SELECT *,
           ROW_NUMBER() OVER (
               PARTITION BY user_id, beatmap_id, mods_key
               ORDER BY pp DESC, parse_seq ASC
           ) AS rn
    FROM stg_scores
) ranked
WHERE rn = 1
ORDER BY beatmap_id, mods_key, user_id`

func topKSQL(k int) string {
	return fmt.Sprintf(`CREATE OR REPLACE TABLE mart_user_topk AS
SELECT score_id, user_id, beatmap_id, mods_key, speed_mod, pp, parse_seq, rn AS rank
FROM (
    SELECT *,
           ROW_NUMBER() OVER (
               PARTITION BY user_id, speed_mod
               ORDER BY pp DESC, parse_seq ASC
           ) AS rn
    FROM mart_best_scores
) ranked
WHERE rn <= %d
ORDER BY user_id, speed_mod NULLS FIRST, rank`, k)
}

// Mean and standard deviation are folded over a sorted list so the
// floating point result does not depend on aggregation order.
const userSetsSQL = `CREATE OR REPLACE TABLE mart_beatmap_user_sets AS
WITH grouped AS (
    SELECT
        beatmap_id,
        mods_key,
        list(user_id ORDER BY user_id) AS user_ids,
        list(pp ORDER BY pp, user_id) AS pps,
        min(pp) AS min_pp,
        quantile_cont(pp, 0.5) AS median_pp,
        quantile_cont(pp, 0.75) AS p75_pp,
        quantile_cont(pp, 0.9) AS p90_pp
    FROM mart_best_scores
    GROUP BY beatmap_id, mods_key
)
SELECT
    beatmap_id,
    mods_key,
    user_ids,
    len(user_ids)::BIGINT AS user_count,
    list_aggregate(pps, 'avg') AS avg_pp,
    list_aggregate(pps, 'stddev_samp') AS std_pp,
    min_pp,
    median_pp,
    p75_pp,
    p90_pp
FROM grouped
ORDER BY beatmap_id, mods_key`

var indexSQL = []string{
	"DROP INDEX IF EXISTS " + IndexBestByBeatmap,
	"DROP INDEX IF EXISTS " + IndexBestByUser,
	"CREATE INDEX " + IndexBestByBeatmap + " ON mart_best_scores(beatmap_id, pp, mods_key, user_id)",
	"CREATE INDEX " + IndexBestByUser + " ON mart_best_scores(user_id, beatmap_id, pp)",
}

// fingerprintOrder fixes the row order hashed for each layer.
var fingerprintOrder = map[string]string{
	TableStaging:  "parse_seq",
	TableBest:     "beatmap_id, mods_key, user_id",
	TableTopK:     "user_id, speed_mod NULLS FIRST, rank",
	TableUserSets: "beatmap_id, mods_key",
}

// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

/*
Package warehouse builds the layered DuckDB dataset served by the cohort engine.

Layers, in build order:

	raw_<table>              every verified shard of a dump table, in parse order
	stg_scores               standard-mode scores with a pp value
	mart_best_scores         one row per (user_id, beatmap_id, mods_key): highest pp,
	                         earliest parsed on ties
	mart_user_topk           top K best scores per (user_id, speed_mod)
	mart_beatmap_user_sets   per (beatmap_id, mods_key): sorted user_ids, user_count
	                         and pp distribution (avg, std, min, median, p75, p90)

plus two indexes on mart_best_scores: (beatmap_id, pp, mods_key, user_id) and
(user_id, beatmap_id, pp).

Each layer is replaced inside a transaction, so a failure leaves the previous
copy of that layer readable. A table whose shards fail verification is not
loaded; when that table is scores the mart layers are not rebuilt and
RunTransform returns ErrTransformBlocked.

Rebuilding from unchanged shards reproduces every layer exactly;
LayerFingerprint exposes a content hash per layer to check this.
*/
package warehouse

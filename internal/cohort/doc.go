// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

/*
Package cohort answers cohort statistics and overlap recommendation queries
against the mart layers built by the warehouse package.

A cohort is the set of users whose best pp on a seed beatmap (optionally a
single mods variant) lies in a range. Without a variant each user counts once,
with the maximum pp over their variants of the seed.

Recommend ranks every other (beatmap_id, mods_key) population of at least
MinPopulation users by its overlap with the cohort:

	overlap desc, avg_pp desc, beatmap_id asc, mods_key asc

Variants with fewer than max(1, MinOverlap) shared users are dropped and
novelty is 1 - overlap/population.

Large cohorts are copied into a temporary table on a pinned connection and
joined against the unnested populations; smaller ones are bound as an IN list.
The temporary table belongs to one query and is dropped when it returns, even
after cancellation.

The Engine holds no mutable state besides an optional result cache, so a
single Engine serves concurrent queries.
*/
package cohort

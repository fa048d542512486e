// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package testinfra

import (
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cohortmart/internal/config"
	"github.com/tomtom215/cohortmart/internal/dump"
	"github.com/tomtom215/cohortmart/internal/shard"
	"github.com/tomtom215/cohortmart/internal/warehouse"
)

// Score is a compact description of one scores row.
type Score struct {
	ID       int64
	User     int64
	Beatmap  int64
	PP       float64
	NoPP     bool
	Mods     []string
	Playmode int64
}

// ScoreData renders mod acronyms as the JSON data column of a score.
func ScoreData(mods ...string) string {
	type mod struct {
		Acronym string `json:"acronym"`
	}
	d := struct {
		Mods []mod `json:"mods"`
	}{Mods: make([]mod, 0, len(mods))}
	for _, m := range mods {
		d.Mods = append(d.Mods, mod{Acronym: m})
	}
	b, err := json.Marshal(d)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// Row converts the score into a typed row with derived columns filled.
func (s Score) Row() dump.Row {
	data := ScoreData(s.Mods...)
	key, speed := dump.ModsKey(data)

	pp := dump.Float64Value(s.PP)
	if s.NoPP {
		pp = dump.Null(dump.TypeFloat64)
	}
	speedVal := dump.Null(dump.TypeText)
	if speed != "" {
		speedVal = dump.TextValue(speed)
	}
	return dump.Row{
		dump.Int64Value(s.ID),
		dump.Int64Value(s.User),
		dump.Int64Value(s.Beatmap),
		dump.Null(dump.TypeInt64),
		pp,
		dump.Int64Value(s.Playmode),
		dump.TextValue(data),
		dump.TextValue(key),
		speedVal,
	}
}

// ScoreRows converts fixtures into rows in the given order.
func ScoreRows(scores []Score) []dump.Row {
	rows := make([]dump.Row, len(scores))
	for i, s := range scores {
		rows[i] = s.Row()
	}
	return rows
}

// WriteShards commits rows of a table under root with small shards so that
// multi-file reads are exercised. It returns the manifest and table directory.
func WriteShards(t *testing.T, root, table string, rows []dump.Row) (*shard.Manifest, string) {
	t.Helper()

	tbl := dump.MustLookup(table)
	opts := shard.DefaultOptions()
	opts.MaxShardRows = 3
	opts.RowGroupRows = 2

	w, err := shard.NewWriter(root, tbl, opts)
	if err != nil {
		t.Fatalf("NewWriter(%s): %v", table, err)
	}
	if len(rows) > 0 {
		if err := w.Write(context.Background(), &dump.Batch{Table: tbl, Rows: rows}); err != nil {
			t.Fatalf("Write(%s): %v", table, err)
		}
	}
	m, err := w.Close()
	if err != nil {
		t.Fatalf("Close(%s): %v", table, err)
	}
	return m, w.Dir()
}

// Dataset is a set of committed shard tables ready for a transform.
type Dataset struct {
	Root      string
	Manifests map[string]*shard.Manifest
	Dirs      map[string]string
}

// NewDataset commits scores plus any extra tables under a temporary root.
func NewDataset(t *testing.T, scores []Score, extra map[string][]dump.Row) *Dataset {
	t.Helper()

	ds := &Dataset{
		Root:      t.TempDir(),
		Manifests: make(map[string]*shard.Manifest),
		Dirs:      make(map[string]string),
	}
	ds.Add(t, "scores", ScoreRows(scores))
	for table, rows := range extra {
		ds.Add(t, table, rows)
	}
	return ds
}

// Add commits a table into the dataset, replacing a previous copy.
func (ds *Dataset) Add(t *testing.T, table string, rows []dump.Row) {
	t.Helper()
	m, dir := WriteShards(t, ds.Root, table, rows)
	ds.Manifests[table] = m
	ds.Dirs[table] = dir
}

// OpenWarehouse opens an in-memory warehouse closed at test cleanup.
func OpenWarehouse(t *testing.T) *warehouse.DB {
	t.Helper()

	cfg := config.Default().Warehouse
	cfg.Path = warehouse.MemoryPath
	cfg.Threads = 2
	cfg.MaxMemory = ""
	db, err := warehouse.Open(&cfg)
	if err != nil {
		t.Fatalf("open warehouse: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("close warehouse: %v", err)
		}
	})
	return db
}

// NewWarehouse builds every layer from the given scores and extra tables.
func NewWarehouse(t *testing.T, scores []Score, extra map[string][]dump.Row) *warehouse.DB {
	t.Helper()

	ds := NewDataset(t, scores, extra)
	db := OpenWarehouse(t)
	if _, err := db.RunTransform(context.Background(), ds.Manifests, ds.Dirs); err != nil {
		t.Fatalf("RunTransform: %v", err)
	}
	return db
}

// BeatmapRow builds a beatmaps row.
func BeatmapRow(beatmap, set int64, version string, stars float64) dump.Row {
	return dump.Row{
		dump.Int64Value(beatmap),
		dump.Int64Value(set),
		dump.TextValue(version),
		dump.Float64Value(stars),
	}
}

// BeatmapsetRow builds a beatmapsets row.
func BeatmapsetRow(set int64, artist, title string) dump.Row {
	return dump.Row{
		dump.Int64Value(set),
		dump.TextValue(artist),
		dump.TextValue(title),
	}
}

// ModsKey returns the variant key fixtures with these mods end up with.
func ModsKey(mods ...string) string {
	key, _ := dump.ModsKey(ScoreData(mods...))
	return key
}

// Dump renders scores as a MySQL dump with a CREATE TABLE header, for
// end-to-end ingest tests.
func Dump(table string, scores []Score) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE `" + table + "` (\n")
	b.WriteString("  `id` bigint NOT NULL,\n  `user_id` int NOT NULL,\n  `beatmap_id` int NOT NULL,\n")
	b.WriteString("  `score` int DEFAULT NULL,\n  `pp` float DEFAULT NULL,\n  `playmode` tinyint NOT NULL,\n")
	b.WriteString("  `data` json DEFAULT NULL,\n  PRIMARY KEY (`id`)\n);\n")
	if len(scores) == 0 {
		return b.String()
	}
	b.WriteString("INSERT INTO `" + table + "` VALUES ")
	for i, s := range scores {
		if i > 0 {
			b.WriteString(",")
		}
		pp := "NULL"
		if !s.NoPP {
			pp = dump.Float64Value(s.PP).String()
		}
		data := strings.ReplaceAll(ScoreData(s.Mods...), `"`, `\"`)
		b.WriteString("(" + dump.Int64Value(s.ID).String() + "," + dump.Int64Value(s.User).String() + "," +
			dump.Int64Value(s.Beatmap).String() + ",1000," + pp + "," + dump.Int64Value(s.Playmode).String() +
			",'" + data + "')")
	}
	b.WriteString(";\n")
	return b.String()
}

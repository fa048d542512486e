// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package dump

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func parseAll(t *testing.T, input, table string, opts Options) ([]Row, Stats) {
	t.Helper()
	p := NewParser(strings.NewReader(input), MustLookup(table), opts)
	var rows []Row
	for {
		b, err := p.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		rows = append(rows, b.Rows...)
	}
	return rows, p.Stats()
}

func col(t *testing.T, table, name string) int {
	t.Helper()
	idx := MustLookup(table).ColumnIndex(name)
	if idx < 0 {
		t.Fatalf("column %s.%s not found", table, name)
	}
	return idx
}

func rowIDs(t *testing.T, rows []Row) []int64 {
	t.Helper()
	idx := col(t, "scores", ColScoreID)
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r[idx].Int
	}
	return ids
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParser_ColumnListWithComments(t *testing.T) {
	input := "-- Sample osu! scores dump\n" +
		"INSERT INTO `scores` (`id`, `user_id`, `beatmap_id`, `score`, `pp`, `playmode`, `data`) VALUES\n" +
		"(1, 101, 201, 1000000, 500.0, 0, '{\"mods\": [{\"acronym\": \"DT\"}]}'),\n" +
		"(2, 101, 201, 950000, 480.0, 0, '{\"mods\": [{\"acronym\": \"HR\"}, {\"acronym\": \"HD\"}]}'),\n" +
		"(7, 104, 203, 985000, 520.0, 0, NULL);\n"

	rows, stats := parseAll(t, input, "scores", DefaultOptions())

	if stats.Rows != 3 || len(rows) != 3 {
		t.Fatalf("rows = %d (stats %d), want 3", len(rows), stats.Rows)
	}
	if stats.Malformed != 0 {
		t.Errorf("Malformed = %d, want 0", stats.Malformed)
	}
	if stats.Statements != 1 {
		t.Errorf("Statements = %d, want 1", stats.Statements)
	}
	if stats.Bytes != int64(len(input)) {
		t.Errorf("Bytes = %d, want %d", stats.Bytes, len(input))
	}

	pp := col(t, "scores", ColPP)
	mods := col(t, "scores", ColModsKey)
	speed := col(t, "scores", ColSpeedMod)
	data := col(t, "scores", ColData)

	if rows[0][pp].Float != 500.0 {
		t.Errorf("pp = %v, want 500", rows[0][pp].Float)
	}
	if rows[0][mods].Text != "DT" || rows[0][speed].Text != "DT" {
		t.Errorf("row 1 mods = %q/%q, want DT/DT", rows[0][mods].Text, rows[0][speed].Text)
	}
	if rows[1][mods].Text != "HD,HR" || !rows[1][speed].IsNull() {
		t.Errorf("row 2 mods = %q/%v, want HD,HR/NULL", rows[1][mods].Text, rows[1][speed])
	}
	if !rows[2][data].IsNull() || rows[2][data].Type != TypeText {
		t.Errorf("row 3 data = %+v, want typed text null", rows[2][data])
	}
	if rows[2][mods].Text != "" || !rows[2][mods].Valid {
		t.Errorf("row 3 mods_key = %+v, want empty string", rows[2][mods])
	}
}

func TestParser_UnterminatedLiteralBetweenGoodRows(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantIDs   []int64
		malformed int64
	}{
		{
			name:      "literal runs to end of input",
			input:     "INSERT INTO `scores` VALUES (1,101,201,1000,250.5,0,'{}'),(2,102,201,900,'oops,0,NULL),(3,103,201,800,180.0,0,NULL);",
			wantIDs:   []int64{1, 3},
			malformed: 1,
		},
		{
			name:      "literal closed by a later quote",
			input:     "INSERT INTO `scores` VALUES (1,101,201,1000,250.5,0,'{}'),(2,102,201,900,'oops,0,NULL),(3,103,201,800,180.0,0,'x'),(4,104,201,700,100.0,0,NULL);",
			wantIDs:   []int64{1, 3, 4},
			malformed: 1,
		},
		{
			name:      "rows on separate lines",
			input:     "INSERT INTO `scores` VALUES\n(1,101,201,1000,250.5,0,NULL),\n(2,102,201,900,120.0,0,'{\"mods\":),\n(3,103,201,800,180.0,0,'{}');\n",
			wantIDs:   []int64{1, 3},
			malformed: 1,
		},
		{
			name:      "stray quote inside a literal",
			input:     "INSERT INTO `scores` VALUES (1,101,201,1000,250.5,0,NULL),(2,102,201,900,120.0,0,'ab'c'),(3,103,201,800,180.0,0,NULL),(4,104,201,700,100.0,0,NULL);",
			wantIDs:   []int64{1, 3, 4},
			malformed: 1,
		},
		{
			name:      "stray quote before a quoted row",
			input:     "INSERT INTO `scores` VALUES (1,101,201,1000,250.5,0,NULL),(2,102,201,900,120.0,0,'ab'c'),(3,103,201,800,180.0,0,'{}'),(4,104,201,700,100.0,0,NULL);",
			wantIDs:   []int64{1, 3, 4},
			malformed: 1,
		},
		{
			name:      "broken last row",
			input:     "INSERT INTO `scores` VALUES (1,101,201,1000,250.5,0,NULL),(2,102,201,900,120.0,0,'oops);\nINSERT INTO `scores` VALUES (5,105,201,1,1.0,0,NULL);",
			wantIDs:   []int64{1, 5},
			malformed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, stats := parseAll(t, tt.input, "scores", DefaultOptions())
			if got := rowIDs(t, rows); !equalIDs(got, tt.wantIDs) {
				t.Errorf("ids = %v, want %v", got, tt.wantIDs)
			}
			if stats.Malformed != tt.malformed {
				t.Errorf("Malformed = %d, want %d", stats.Malformed, tt.malformed)
			}
		})
	}
}

func TestParser_OversizedUnclosedLiteral(t *testing.T) {
	input := "INSERT INTO `scores` VALUES (1,101,201,1000,250.5,0,NULL),(2,102,201,900,120.0,0,'abcdefgh),(3,103,201,800,180.0,0,NULL);"
	opts := DefaultOptions()
	opts.MaxLiteralBytes = 4

	rows, stats := parseAll(t, input, "scores", opts)
	if got := rowIDs(t, rows); !equalIDs(got, []int64{1}) {
		t.Errorf("ids = %v, want [1]", got)
	}
	if stats.Malformed != 1 {
		t.Errorf("Malformed = %d, want 1", stats.Malformed)
	}
	if stats.Truncated != 1 {
		t.Errorf("Truncated = %d, want 1", stats.Truncated)
	}
}

func TestParser_RowLevelFailures(t *testing.T) {
	input := "INSERT INTO scores (id, user_id, beatmap_id, pp, playmode) VALUES\n" +
		"(1, 10, 100, 99.5, 0),\n" +
		"(2, 'ten', 100, 80.0, 0),\n" +
		"(3, 99999999999999999999, 100, 80.0, 0),\n" +
		"(4, NULL, 100, 80.0, 0),\n" +
		"(5, 11, 100, NULL, 0),\n" +
		"(6, 12, 100, 1.5, 0x1F),\n" +
		"(7, 13, 100),\n" +
		"(8, 14, 100, 2.5, 0, 99),\n" +
		"(9, 15, 100, 1e400, 0),\n" +
		"(),\n" +
		"(10, 16, 100, 3.5, CURRENT_TIMESTAMP),\n" +
		"(11, 17, 100, 4.5, 0);\n"

	rows, stats := parseAll(t, input, "scores", DefaultOptions())

	if got, want := rowIDs(t, rows), []int64{1, 5, 11}; !equalIDs(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
	if stats.Malformed != 9 {
		t.Errorf("Malformed = %d, want 9", stats.Malformed)
	}

	pp := col(t, "scores", ColPP)
	if !rows[1][pp].IsNull() || rows[1][pp].Type != TypeFloat64 {
		t.Errorf("pp = %+v, want typed float null", rows[1][pp])
	}
	if score := rows[0][col(t, "scores", "score")]; !score.IsNull() {
		t.Errorf("unlisted nullable column = %v, want NULL", score)
	}
}

func TestParser_SkipsUnrelatedStatements(t *testing.T) {
	input := "/*!40101 SET NAMES utf8 */;\n" +
		"SET time_zone = '+00:00';\n" +
		"DROP TABLE IF EXISTS `scores`;\n" +
		"CREATE TABLE `scores` (\n" +
		"  `id` bigint unsigned NOT NULL,\n" +
		"  `user_id` int unsigned NOT NULL,\n" +
		"  `beatmap_id` mediumint NOT NULL,\n" +
		"  `playmode` tinyint NOT NULL,\n" +
		"  `pp` decimal(10,2) DEFAULT NULL,\n" +
		"  `data` json DEFAULT NULL,\n" +
		"  `score` int DEFAULT NULL,\n" +
		"  PRIMARY KEY (`id`),\n" +
		"  KEY `user_beatmap` (`user_id`,`beatmap_id`)\n" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;\n" +
		"LOCK TABLES `scores` WRITE;\n" +
		"INSERT INTO `beatmaps` VALUES (1,2,'Hard;Insane',4.5);\n" +
		"INSERT INTO `scores` VALUES (1,10,100,0,120.5,'{\\\"mods\\\":[{\\\"acronym\\\":\\\"HT\\\"}]}',5000);\n" +
		"UNLOCK TABLES;\n"

	rows, stats := parseAll(t, input, "scores", DefaultOptions())

	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if stats.SkippedStatements != 5 {
		t.Errorf("SkippedStatements = %d, want 5", stats.SkippedStatements)
	}
	if stats.Statements != 1 {
		t.Errorf("Statements = %d, want 1", stats.Statements)
	}

	row := rows[0]
	if got := row[col(t, "scores", ColPP)].Float; got != 120.5 {
		t.Errorf("pp = %v, want 120.5 (declared column order)", got)
	}
	if got := row[col(t, "scores", "score")].Int; got != 5000 {
		t.Errorf("score = %d, want 5000", got)
	}
	if got := row[col(t, "scores", ColData)].Text; got != `{"mods":[{"acronym":"HT"}]}` {
		t.Errorf("data = %q", got)
	}
	if got := row[col(t, "scores", ColSpeedMod)].Text; got != SpeedHalfTime {
		t.Errorf("speed_mod = %q, want HT", got)
	}
}

func TestParser_LiteralEscapes(t *testing.T) {
	input := "INSERT INTO `scores` (`id`,`user_id`,`beatmap_id`,`playmode`,`data`) VALUES\n" +
		"(1, 1, 1, 0, 'It''s a test'), -- doubled quote\n" +
		"(2, 1, 2, 0, 'back\\\\slash\\nnext'), # hash comment\n" +
		"(3, 1, 3, 0, \"double \"\"quoted\"\"\"),\n" +
		"(4, 1, 4, 0, 'semi;colon),(paren');\n"

	rows, stats := parseAll(t, input, "scores", DefaultOptions())
	if stats.Malformed != 0 {
		t.Fatalf("Malformed = %d, want 0", stats.Malformed)
	}

	want := []string{"It's a test", "back\\slash\nnext", `double "quoted"`, "semi;colon),(paren"}
	data := col(t, "scores", ColData)
	if len(rows) != len(want) {
		t.Fatalf("rows = %d, want %d", len(rows), len(want))
	}
	for i, w := range want {
		if got := rows[i][data].Text; got != w {
			t.Errorf("row %d data = %q, want %q", i+1, got, w)
		}
	}
}

func TestParser_Batching(t *testing.T) {
	input := "INSERT INTO sample_users VALUES (1,'a'),(2,'b'),(3,'c');\n" +
		"INSERT INTO sample_users VALUES (4,'d'),(5,'e');\n"

	p := NewParser(strings.NewReader(input), MustLookup("sample_users"), Options{BatchSize: 2})

	var sizes []int
	var firsts []int64
	for {
		b, err := p.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if b.Seq != len(sizes) {
			t.Errorf("Seq = %d, want %d", b.Seq, len(sizes))
		}
		sizes = append(sizes, b.Len())
		firsts = append(firsts, b.FirstSeq)
	}

	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("batch sizes = %v, want [2 2 1]", sizes)
	}
	if len(firsts) != 3 || firsts[0] != 0 || firsts[1] != 2 || firsts[2] != 4 {
		t.Errorf("first ordinals = %v, want [0 2 4]", firsts)
	}

	if _, err := p.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after end = %v, want io.EOF", err)
	}
}

func TestParser_EmptyInput(t *testing.T) {
	p := NewParser(strings.NewReader(""), MustLookup("scores"), DefaultOptions())
	if _, err := p.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Next() = %v, want io.EOF", err)
	}
}

func TestParser_ReadErrorIsFatal(t *testing.T) {
	errBoom := errors.New("disk on fire")
	r := io.MultiReader(strings.NewReader("INSERT INTO scores VALUES (1,"), iotest.ErrReader(errBoom))
	p := NewParser(r, MustLookup("scores"), DefaultOptions())

	_, err := p.Next(context.Background())
	if !errors.Is(err, errBoom) {
		t.Fatalf("Next() error = %v, want %v", err, errBoom)
	}
	if _, err := p.Next(context.Background()); !errors.Is(err, errBoom) {
		t.Errorf("second Next() error = %v, want sticky %v", err, errBoom)
	}
}

func TestParser_OversizedLiteral(t *testing.T) {
	input := "INSERT INTO sample_users VALUES (1,'" + strings.Repeat("x", 64) + "'),(2,'ok');"
	rows, stats := parseAll(t, input, "sample_users", Options{MaxLiteralBytes: 16})

	if len(rows) != 1 || rows[0][0].Int != 2 {
		t.Errorf("rows = %v, want only user 2", rows)
	}
	if stats.Malformed != 1 {
		t.Errorf("Malformed = %d, want 1", stats.Malformed)
	}
}

func TestParser_ContextCancelled(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO sample_users VALUES ")
	for i := 0; i < 5000; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(1,'a')")
	}
	sb.WriteString(";")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewParser(strings.NewReader(sb.String()), MustLookup("sample_users"), DefaultOptions())
	if _, err := p.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next() error = %v, want context.Canceled", err)
	}
}

func TestRowBoundary(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"abc),(def", 4},
		{"abc) , ( def", 4},
		{"abc);rest", 4},
		{"abc) ;", 4},
		{"no boundary", -1},
		{"abc),def", -1},
		{"abc)", -1},
	}
	for _, tt := range tests {
		if got := rowBoundary([]byte(tt.in)); got != tt.want {
			t.Errorf("rowBoundary(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

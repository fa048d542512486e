// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package dump

import (
	"errors"
	"testing"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"scores", "scores", false},
		{"osu_scores_high", "scores", false},
		{"OSU_BEATMAPS", "beatmaps", false},
		{"osu_beatmapsets", "beatmapsets", false},
		{"osu_chat", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := Lookup(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownTable) {
					t.Errorf("Lookup() error = %v, want ErrUnknownTable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if table.Name != tt.want {
				t.Errorf("Lookup() = %s, want %s", table.Name, tt.want)
			}
		})
	}
}

func TestTables_Unique(t *testing.T) {
	tables := Tables()
	seen := make(map[string]bool)
	for i, table := range tables {
		if seen[table.Name] {
			t.Errorf("table %s listed twice", table.Name)
		}
		seen[table.Name] = true
		if i > 0 && tables[i-1].Name >= table.Name {
			t.Errorf("tables not sorted at %s", table.Name)
		}
	}
	if !seen["scores"] || !seen["beatmaps"] || !seen["beatmapsets"] {
		t.Errorf("core tables missing from %v", seen)
	}
}

func TestScoresSchema(t *testing.T) {
	scores := MustLookup("scores")
	if got := scores.SourceColumns(); got != 7 {
		t.Errorf("SourceColumns() = %d, want 7", got)
	}
	for _, name := range []string{ColUserID, ColBeatmapID, ColPlaymode} {
		c := scores.Columns[scores.ColumnIndex(name)]
		if c.Nullable {
			t.Errorf("%s is nullable, want key column", name)
		}
	}
	if c := scores.Columns[scores.ColumnIndex(ColModsKey)]; !c.Derived || c.Nullable {
		t.Errorf("mods_key = %+v, want derived non-null", c)
	}
}

func TestModsKey(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantKey   string
		wantSpeed string
	}{
		{"sorted acronyms", `{"mods":[{"acronym":"HD"},{"acronym":"DT"}]}`, "DT,HD", "DT"},
		{"nightcore is double time", `{"mods":[{"acronym":"NC"},{"acronym":"HD"}]}`, "HD,NC", "DT"},
		{"half time", `{"mods":[{"acronym":"HT"}]}`, "HT", "HT"},
		{"no speed mod", `{"mods":[{"acronym":"HR"}]}`, "HR", ""},
		{"empty mods", `{"mods":[]}`, "", ""},
		{"no mods field", `{"ruleset_id":0}`, "", ""},
		{"truncated json", `{"mods": [`, "", ""},
		{"empty data", "", "", ""},
		{"settings ignored", `{"mods":[{"acronym":"DT","settings":{"speed_change":1.3}}]}`, "DT", "DT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, speed := ModsKey(tt.data)
			if key != tt.wantKey || speed != tt.wantSpeed {
				t.Errorf("ModsKey() = (%q, %q), want (%q, %q)", key, speed, tt.wantKey, tt.wantSpeed)
			}
		})
	}
}

func TestDecodeLiteral(t *testing.T) {
	tests := []struct {
		raw   string
		quote byte
		want  string
	}{
		{"plain", '\'', "plain"},
		{"It''s", '\'', "It's"},
		{`a\'b`, '\'', "a'b"},
		{`tab\there`, '\'', "tab\there"},
		{`nul\0`, '\'', "nul\x00"},
		{`say ""hi""`, '"', `say "hi"`},
		{`unknown\q`, '\'', "unknownq"},
	}
	for _, tt := range tests {
		if got := decodeLiteral([]byte(tt.raw), tt.quote); got != tt.want {
			t.Errorf("decodeLiteral(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

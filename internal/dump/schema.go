// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package dump

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownTable is returned when a table name is not part of the registry.
var ErrUnknownTable = errors.New("unknown table")

// ScalarType is the storage type of a column.
type ScalarType uint8

const (
	TypeInt64 ScalarType = iota + 1
	TypeFloat64
	TypeText
)

// String returns the DuckDB spelling of the type.
func (t ScalarType) String() string {
	switch t {
	case TypeInt64:
		return "BIGINT"
	case TypeFloat64:
		return "DOUBLE"
	case TypeText:
		return "VARCHAR"
	default:
		return fmt.Sprintf("ScalarType(%d)", uint8(t))
	}
}

// Column describes a single column of a table.
type Column struct {
	Name     string
	Type     ScalarType
	Nullable bool

	// Derived columns are not read from the dump. They are computed from
	// the source columns once a row has been converted.
	Derived bool
}

// Table is a closed, typed description of a dump table.
type Table struct {
	// Name is the canonical table name; raw layers are named raw_<Name>.
	Name string

	// Aliases are alternative names used by dump producers (osu_beatmaps).
	Aliases []string

	// Columns lists source columns in dump order followed by derived columns.
	Columns []Column

	derive func(t *Table, row Row)
	index  map[string]int
}

// SourceColumns returns the number of columns read from the dump.
func (t *Table) SourceColumns() int {
	n := 0
	for _, c := range t.Columns {
		if !c.Derived {
			n++
		}
	}
	return n
}

// ColumnIndex returns the position of a column by case-insensitive name, or -1.
func (t *Table) ColumnIndex(name string) int {
	if i, ok := t.index[strings.ToLower(name)]; ok {
		return i
	}
	return -1
}

// ColumnNames returns the names of all columns, derived included.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Matches reports whether name refers to this table.
func (t *Table) Matches(name string) bool {
	if strings.EqualFold(name, t.Name) {
		return true
	}
	for _, a := range t.Aliases {
		if strings.EqualFold(name, a) {
			return true
		}
	}
	return false
}

func newTable(name string, aliases []string, cols []Column, derive func(*Table, Row)) *Table {
	t := &Table{
		Name:    name,
		Aliases: aliases,
		Columns: cols,
		derive:  derive,
		index:   make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		t.index[strings.ToLower(c.Name)] = i
	}
	return t
}

func key(name string, typ ScalarType) Column { return Column{Name: name, Type: typ} }

func opt(name string, typ ScalarType) Column { return Column{Name: name, Type: typ, Nullable: true} }

// Score table columns referenced by the transform layers.
const (
	ColScoreID   = "id"
	ColUserID    = "user_id"
	ColBeatmapID = "beatmap_id"
	ColPP        = "pp"
	ColPlaymode  = "playmode"
	ColData      = "data"
	ColModsKey   = "mods_key"
	ColSpeedMod  = "speed_mod"
)

var registry = func() map[string]*Table {
	tables := []*Table{
		newTable("scores", []string{"osu_scores", "osu_scores_high"}, []Column{
			key(ColScoreID, TypeInt64),
			key(ColUserID, TypeInt64),
			key(ColBeatmapID, TypeInt64),
			opt("score", TypeInt64),
			opt(ColPP, TypeFloat64),
			key(ColPlaymode, TypeInt64),
			opt(ColData, TypeText),
			{Name: ColModsKey, Type: TypeText, Derived: true},
			{Name: ColSpeedMod, Type: TypeText, Nullable: true, Derived: true},
		}, deriveMods),
		newTable("beatmaps", []string{"osu_beatmaps"}, []Column{
			key("beatmap_id", TypeInt64),
			opt("beatmapset_id", TypeInt64),
			opt("version", TypeText),
			opt("difficultyrating", TypeFloat64),
		}, nil),
		newTable("beatmapsets", []string{"osu_beatmapsets"}, []Column{
			key("beatmapset_id", TypeInt64),
			opt("artist", TypeText),
			opt("title", TypeText),
		}, nil),
		newTable("user_stats", []string{"osu_user_stats"}, []Column{
			key("user_id", TypeInt64),
			opt("playcount", TypeInt64),
			opt("rank_score", TypeFloat64),
			opt("accuracy", TypeFloat64),
		}, nil),
		newTable("beatmap_difficulty", []string{"osu_beatmap_difficulty"}, []Column{
			key("beatmap_id", TypeInt64),
			key("mode", TypeInt64),
			key("mods", TypeInt64),
			opt("diff_unified", TypeFloat64),
		}, nil),
		newTable("beatmap_difficulty_attribs", []string{"osu_beatmap_difficulty_attribs"}, []Column{
			key("beatmap_id", TypeInt64),
			key("mode", TypeInt64),
			key("mods", TypeInt64),
			key("attrib_id", TypeInt64),
			opt("value", TypeFloat64),
		}, nil),
		newTable("user_beatmap_playcount", []string{"osu_user_beatmap_playcount"}, []Column{
			key("user_id", TypeInt64),
			key("beatmap_id", TypeInt64),
			opt("playcount", TypeInt64),
		}, nil),
		newTable("counts", []string{"osu_counts"}, []Column{
			key("name", TypeText),
			opt("count", TypeInt64),
		}, nil),
		newTable("beatmap_performance_blacklist", []string{"osu_beatmap_performance_blacklist"}, []Column{
			key("beatmap_id", TypeInt64),
			key("mode", TypeInt64),
		}, nil),
		newTable("sample_users", nil, []Column{
			key("user_id", TypeInt64),
			opt("username", TypeText),
		}, nil),
	}

	m := make(map[string]*Table)
	for _, t := range tables {
		m[t.Name] = t
		for _, a := range t.Aliases {
			m[a] = t
		}
	}
	return m
}()

// Lookup returns the registered table for a canonical name or alias.
func Lookup(name string) (*Table, error) {
	if t, ok := registry[strings.ToLower(name)]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
}

// MustLookup is Lookup for names known at compile time.
func MustLookup(name string) *Table {
	t, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Tables returns every registered table once, ordered by name.
func Tables() []*Table {
	seen := make(map[*Table]bool)
	var out []*Table
	for _, t := range registry {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

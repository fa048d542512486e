// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package dump

import (
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// Speed mod variants.
const (
	SpeedDoubleTime = "DT"
	SpeedHalfTime   = "HT"
)

type scoreData struct {
	Mods []struct {
		Acronym string `json:"acronym"`
	} `json:"mods"`
}

// ModsKey extracts the normalized variant key and speed mod from the JSON
// data column of a score. The key is the sorted list of mod acronyms
// joined by ",", empty when no mods were used. speed is "DT" when DT or NC
// is present, "HT" when HT is present, and empty otherwise.
//
// Unparseable JSON is treated as a score without mods.
func ModsKey(data string) (key, speed string) {
	if data == "" {
		return "", ""
	}
	var d scoreData
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return "", ""
	}
	if len(d.Mods) == 0 {
		return "", ""
	}

	acronyms := make([]string, 0, len(d.Mods))
	for _, m := range d.Mods {
		if m.Acronym != "" {
			acronyms = append(acronyms, m.Acronym)
		}
	}
	sort.Strings(acronyms)

	for _, a := range acronyms {
		if a == "DT" || a == "NC" {
			speed = SpeedDoubleTime
			break
		}
	}
	if speed == "" {
		for _, a := range acronyms {
			if a == "HT" {
				speed = SpeedHalfTime
				break
			}
		}
	}
	return strings.Join(acronyms, ","), speed
}

func deriveMods(t *Table, row Row) {
	data := ""
	if v := row[t.ColumnIndex(ColData)]; v.Valid {
		data = v.Text
	}
	key, speed := ModsKey(data)
	row[t.ColumnIndex(ColModsKey)] = TextValue(key)
	if speed == "" {
		row[t.ColumnIndex(ColSpeedMod)] = Null(TypeText)
	} else {
		row[t.ColumnIndex(ColSpeedMod)] = TextValue(speed)
	}
}

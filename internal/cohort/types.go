// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package cohort

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNotFound is returned when the seed beatmap (and variant) has no
	// recorded population.
	ErrNotFound = errors.New("seed not found")

	// ErrInvalidQuery is returned for a query whose arguments cannot be resolved.
	ErrInvalidQuery = errors.New("invalid query")
)

// Default range bounds applied when a bound is omitted.
const (
	DefaultLower = 0.0
	DefaultUpper = math.MaxFloat64
)

// Range is an optional metric range. A nil bound takes its default.
type Range struct {
	Lower *float64 `json:"lower,omitempty"`
	Upper *float64 `json:"upper,omitempty"`
}

// Between returns a range with both bounds set.
func Between(lower, upper float64) Range {
	return Range{Lower: &lower, Upper: &upper}
}

// AtLeast returns a range with only the lower bound set.
func AtLeast(lower float64) Range {
	return Range{Lower: &lower}
}

// Resolve returns the inclusive bounds of the range.
func (r Range) Resolve() (lower, upper float64, err error) {
	lower, upper = DefaultLower, DefaultUpper
	if r.Lower != nil {
		lower = *r.Lower
	}
	if r.Upper != nil {
		upper = *r.Upper
	}
	if math.IsNaN(lower) || math.IsNaN(upper) {
		return 0, 0, fmt.Errorf("%w: NaN range bound", ErrInvalidQuery)
	}
	if lower > upper {
		return 0, 0, fmt.Errorf("%w: lower bound %g exceeds upper bound %g", ErrInvalidQuery, lower, upper)
	}
	return lower, upper, nil
}

// Query selects a cohort and the thresholds of a recommendation.
// Zero thresholds take the engine defaults.
type Query struct {
	Seed int64 `json:"beatmap_id"`

	// Variant restricts the cohort to one mods key. The empty string is the
	// no-mod variant; nil means every variant of the seed.
	Variant *string `json:"mods_key,omitempty"`

	Range Range `json:"range"`

	MinPopulation int `json:"min_population,omitempty"`
	MinOverlap    int `json:"min_overlap,omitempty"`
	Limit         int `json:"limit,omitempty"`
}

// Variant returns a pointer to key, for building queries.
func Variant(key string) *string {
	return &key
}

// Member is one user of a cohort with their metric on the seed.
type Member struct {
	UserID int64   `json:"user_id"`
	PP     float64 `json:"pp"`
}

// Cohort is the set of users selected by a query, ordered by user_id.
type Cohort struct {
	Seed    int64    `json:"beatmap_id"`
	Variant *string  `json:"mods_key,omitempty"`
	Lower   float64  `json:"lower"`
	Upper   float64  `json:"upper"`
	Members []Member `json:"members"`
}

// Size returns the number of users in the cohort.
func (c *Cohort) Size() int {
	return len(c.Members)
}

// UserIDs returns the member ids in ascending order.
func (c *Cohort) UserIDs() []int64 {
	ids := make([]int64, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.UserID
	}
	return ids
}

// Stats summarizes the metric distribution of a cohort.
type Stats struct {
	Seed    int64   `json:"beatmap_id"`
	Variant *string `json:"mods_key,omitempty"`
	Size    int     `json:"size"`
	Min     float64 `json:"min_pp"`
	Max     float64 `json:"max_pp"`
	Mean    float64 `json:"mean_pp"`
	Median  float64 `json:"median_pp"`
}

// ItemMeta is descriptive beatmap data joined from the raw layer.
type ItemMeta struct {
	BeatmapID        int64    `json:"beatmap_id"`
	BeatmapsetID     *int64   `json:"beatmapset_id,omitempty"`
	Version          *string  `json:"version,omitempty"`
	DifficultyRating *float64 `json:"difficulty_rating,omitempty"`
	Artist           *string  `json:"artist,omitempty"`
	Title            *string  `json:"title,omitempty"`
}

// Recommendation is one ranked candidate variant.
type Recommendation struct {
	BeatmapID  int64     `json:"beatmap_id"`
	ModsKey    string    `json:"mods_key"`
	Overlap    int64     `json:"overlap"`
	Population int64     `json:"population"`
	AvgPP      float64   `json:"avg_pp"`
	StdPP      *float64  `json:"std_pp,omitempty"`
	MedianPP   float64   `json:"median_pp"`
	Novelty    float64   `json:"novelty"`
	Meta       *ItemMeta `json:"metadata,omitempty"`
}

// Novelty is the share of a population outside the cohort.
func Novelty(overlap, population int64) float64 {
	if population <= 0 {
		return 0
	}
	return 1 - float64(overlap)/float64(population)
}

func cloneRecommendations(in []Recommendation) []Recommendation {
	if in == nil {
		return nil
	}
	out := make([]Recommendation, len(in))
	copy(out, in)
	for i := range out {
		out[i].StdPP = clonePtr(out[i].StdPP)
		out[i].Meta = out[i].Meta.clone()
	}
	return out
}

func (m *ItemMeta) clone() *ItemMeta {
	if m == nil {
		return nil
	}
	return &ItemMeta{
		BeatmapID:        m.BeatmapID,
		BeatmapsetID:     clonePtr(m.BeatmapsetID),
		Version:          clonePtr(m.Version),
		DifficultyRating: clonePtr(m.DifficultyRating),
		Artist:           clonePtr(m.Artist),
		Title:            clonePtr(m.Title),
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

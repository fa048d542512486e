// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package api

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/cohortmart/internal/cohort"
)

// CohortRequest selects a cohort. A missing mods parameter selects every
// variant of the beatmap; an empty one selects the no-mod variant.
type CohortRequest struct {
	BeatmapID int64    `query:"id" validate:"gt=0"`
	Mods      *string  `query:"mods" validate:"omitempty,modskey"`
	Lower     *float64 `query:"lower" validate:"omitempty,gte=0"`
	Upper     *float64 `query:"upper" validate:"omitempty,gte=0"`
	Members   bool     `query:"members"`
}

// RecommendRequest selects a cohort and the thresholds of its
// recommendations. Zero thresholds take the server defaults.
type RecommendRequest struct {
	CohortRequest
	MinPopulation int `query:"min_population" validate:"gte=0"`
	MinOverlap    int `query:"min_overlap" validate:"gte=0"`
	Limit         int `query:"limit" validate:"gte=0,lte=1000"`
}

// Query converts the request into an engine query.
func (req *CohortRequest) Query() cohort.Query {
	return cohort.Query{
		Seed:    req.BeatmapID,
		Variant: req.Mods,
		Range:   cohort.Range{Lower: req.Lower, Upper: req.Upper},
	}
}

// Query converts the request into an engine query.
func (req *RecommendRequest) Query() cohort.Query {
	q := req.CohortRequest.Query()
	q.MinPopulation = req.MinPopulation
	q.MinOverlap = req.MinOverlap
	q.Limit = req.Limit
	return q
}

// paramError is a query parameter that could not be parsed.
type paramError struct {
	name  string
	value string
	want  string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("%s must be %s, got %q", e.name, e.want, e.value)
}

// queryValues parses the raw query string. Unlike URL.Query it rejects
// malformed pairs, such as ';' separators, instead of dropping them.
func queryValues(r *http.Request) (url.Values, error) {
	q, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return nil, &paramError{name: "query", value: r.URL.RawQuery, want: "'&' separated key=value pairs"}
	}
	return q, nil
}

func parseCohortRequest(r *http.Request) (*CohortRequest, error) {
	q, err := queryValues(r)
	if err != nil {
		return nil, err
	}
	return cohortRequestFrom(r, q)
}

func cohortRequestFrom(r *http.Request, q url.Values) (*CohortRequest, error) {
	req := &CohortRequest{}
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &paramError{name: "id", value: raw, want: "an integer"}
	}
	req.BeatmapID = id

	if q.Has("mods") {
		key := normalizeModsKey(q.Get("mods"))
		req.Mods = &key
	}
	if req.Lower, err = floatParam(q, "lower"); err != nil {
		return nil, err
	}
	if req.Upper, err = floatParam(q, "upper"); err != nil {
		return nil, err
	}
	if v := q.Get("members"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &paramError{name: "members", value: v, want: "a boolean"}
		}
		req.Members = b
	}
	return req, nil
}

func parseRecommendRequest(r *http.Request) (*RecommendRequest, error) {
	q, err := queryValues(r)
	if err != nil {
		return nil, err
	}
	base, err := cohortRequestFrom(r, q)
	if err != nil {
		return nil, err
	}
	req := &RecommendRequest{CohortRequest: *base}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"min_population", &req.MinPopulation},
		{"min_overlap", &req.MinOverlap},
		{"limit", &req.Limit},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, &paramError{name: p.name, value: v, want: "an integer"}
		}
		*p.dst = n
	}
	return req, nil
}

func floatParam(q url.Values, name string) (*float64, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, &paramError{name: name, value: v, want: "a number"}
	}
	return &f, nil
}

// normalizeModsKey upper-cases and sorts a comma separated acronym list so
// that "hd,dt" selects the stored key "DT,HD".
func normalizeModsKey(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	parts := strings.Split(strings.ToUpper(s), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cohortmart/internal/cohort"
	"github.com/tomtom215/cohortmart/internal/config"
	"github.com/tomtom215/cohortmart/internal/testinfra"
	"github.com/tomtom215/cohortmart/internal/validation"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("GET %s: decode body %q: %v", target, rec.Body.String(), err)
	}
	return rec, env
}

var scenario = []testinfra.Score{
	{ID: 1, User: 1, Beatmap: 100, PP: 250.5},
	{ID: 2, User: 2, Beatmap: 100, PP: 180},
	{ID: 3, User: 1, Beatmap: 200, PP: 300},
	{ID: 4, User: 2, Beatmap: 200, PP: 120},
	{ID: 5, User: 3, Beatmap: 100, PP: 90, Mods: []string{"HD", "DT"}},
}

func newTestRouter(t *testing.T) (http.Handler, *Handler) {
	t.Helper()
	db := testinfra.NewWarehouse(t, scenario, nil)
	engine, err := cohort.NewEngine(db.Conn(), config.Default().Cohort)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	h := NewHandler(engine, db, config.Default())
	return NewRouter(h), h
}

func TestRecommendations(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, env := get(t, router, "/api/v1/beatmaps/100/recommendations?mods=&min_population=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body RecommendationsResponse
	if err := json.Unmarshal(env.Data, &body); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(body.Recommendations) != 1 || body.Recommendations[0].BeatmapID != 200 {
		t.Fatalf("recommendations = %+v, want beatmap 200", body.Recommendations)
	}
	if env.Meta == nil || env.Meta.Count == nil || *env.Meta.Count != 1 {
		t.Errorf("meta = %+v, want count 1", env.Meta)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestRecommendations_UnknownSeedIsEmpty(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, env := get(t, router, "/api/v1/beatmaps/999/recommendations")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var raw struct {
		Recommendations json.RawMessage `json:"recommendations"`
	}
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if string(raw.Recommendations) != "[]" {
		t.Errorf("recommendations = %s, want []", raw.Recommendations)
	}
}

func TestCohort(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name        string
		target      string
		wantSize    int
		wantMembers int
	}{
		{"all variants", "/api/v1/beatmaps/100/cohort", 3, 0},
		{"no-mod variant", "/api/v1/beatmaps/100/cohort?mods=", 2, 0},
		{"mods normalized", "/api/v1/beatmaps/100/cohort?mods=hd,dt&members=true", 1, 1},
		{"range", "/api/v1/beatmaps/100/cohort?lower=100&upper=200&members=true", 1, 1},
		{"empty range", "/api/v1/beatmaps/100/cohort?lower=1000&members=true", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := get(t, router, tt.target)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			var body CohortResponse
			if err := json.Unmarshal(env.Data, &body); err != nil {
				t.Fatalf("decode data: %v", err)
			}
			if body.Stats == nil || body.Stats.Size != tt.wantSize {
				t.Errorf("stats = %+v, want size %d", body.Stats, tt.wantSize)
			}
			if len(body.Members) != tt.wantMembers {
				t.Errorf("members = %+v, want %d", body.Members, tt.wantMembers)
			}
		})
	}
}

func TestRequestErrors(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCode   string
	}{
		{"unknown seed", "/api/v1/beatmaps/999/cohort", http.StatusNotFound, ErrCodeNotFound},
		{"non-numeric id", "/api/v1/beatmaps/abc/cohort", http.StatusBadRequest, validation.ErrorCode},
		{"zero id", "/api/v1/beatmaps/0/cohort", http.StatusBadRequest, validation.ErrorCode},
		{"negative lower", "/api/v1/beatmaps/100/cohort?lower=-1", http.StatusBadRequest, validation.ErrorCode},
		{"bad number", "/api/v1/beatmaps/100/cohort?upper=lots", http.StatusBadRequest, validation.ErrorCode},
		{"bad members", "/api/v1/beatmaps/100/cohort?members=maybe", http.StatusBadRequest, validation.ErrorCode},
		{"bad mods", "/api/v1/beatmaps/100/cohort?mods=HD;DROP", http.StatusBadRequest, validation.ErrorCode},
		{"semicolon separator", "/api/v1/beatmaps/100/recommendations?limit=5;min_overlap=2", http.StatusBadRequest, validation.ErrorCode},
		{"inverted range", "/api/v1/beatmaps/100/cohort?lower=300&upper=100", http.StatusBadRequest, ErrCodeBadRequest},
		{"limit too large", "/api/v1/beatmaps/100/recommendations?limit=5000", http.StatusBadRequest, validation.ErrorCode},
		{"negative overlap", "/api/v1/beatmaps/100/recommendations?min_overlap=-2", http.StatusBadRequest, validation.ErrorCode},
		{"unknown route", "/api/v1/nope", http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := get(t, router, tt.target)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if env.Success || env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %s", env.Error, tt.wantCode)
			}
		})
	}
}

type fakeEngine struct {
	err error
}

func (f *fakeEngine) ExtractCohort(context.Context, cohort.Query) (*cohort.Cohort, error) {
	return nil, f.err
}

func (f *fakeEngine) CohortStats(context.Context, cohort.Query) (*cohort.Stats, error) {
	return nil, f.err
}

func (f *fakeEngine) Recommend(context.Context, cohort.Query) ([]cohort.Recommendation, error) {
	return nil, f.err
}

func TestQueryErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{cohort.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{errors.Join(cohort.ErrInvalidQuery, errors.New("NaN")), http.StatusBadRequest, ErrCodeBadRequest},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, ErrCodeTimeout},
		{errors.New("duckdb: disk I/O error"), http.StatusInternalServerError, ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			router := NewRouter(NewHandler(&fakeEngine{err: tt.err}, nil, config.Default()))
			rec, env := get(t, router, "/api/v1/beatmaps/1/recommendations")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want %s", env.Error, tt.wantCode)
			}
			if tt.wantStatus == http.StatusInternalServerError && env.Error.Message != "query failed" {
				t.Errorf("internal error leaked: %q", env.Error.Message)
			}
		})
	}
}

type fakeWarehouse struct {
	pingErr error
	tables  map[string]bool
}

func (f *fakeWarehouse) Ping(context.Context) error { return f.pingErr }

func (f *fakeWarehouse) TableExists(_ context.Context, name string) (bool, error) {
	return f.tables[name], nil
}

func TestHealth(t *testing.T) {
	built := map[string]bool{}
	for _, name := range requiredTables {
		built[name] = true
	}

	tests := []struct {
		name       string
		db         Warehouse
		ready      bool
		wantStatus int
	}{
		{"ready", &fakeWarehouse{tables: built}, true, http.StatusOK},
		{"not marked ready", &fakeWarehouse{tables: built}, false, http.StatusServiceUnavailable},
		{"warehouse down", &fakeWarehouse{pingErr: errors.New("closed"), tables: built}, true, http.StatusServiceUnavailable},
		{"marts missing", &fakeWarehouse{tables: map[string]bool{}}, true, http.StatusServiceUnavailable},
		{"no warehouse", nil, true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&fakeEngine{}, tt.db, config.Default())
			h.SetReady(tt.ready)
			router := NewRouter(h)

			rec, _ := get(t, router, "/api/v1/health/live")
			if rec.Code != http.StatusOK {
				t.Errorf("live status = %d, want 200", rec.Code)
			}
			rec, _ = get(t, router, "/api/v1/health/ready")
			if rec.Code != tt.wantStatus {
				t.Errorf("ready status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHealthReady_RealWarehouse(t *testing.T) {
	router, h := newTestRouter(t)
	h.SetReady(true)

	rec, env := get(t, router, "/api/v1/health/ready")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, error %+v", rec.Code, env.Error)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RateLimitReqs = 2
	cfg.Server.RateLimitWindow = time.Minute
	router := NewRouter(NewHandler(&fakeEngine{err: cohort.ErrNotFound}, nil, cfg))

	for i := 0; i < 2; i++ {
		if rec, _ := get(t, router, "/api/v1/beatmaps/1/cohort"); rec.Code != http.StatusNotFound {
			t.Fatalf("request %d: status = %d, want 404", i, rec.Code)
		}
	}
	rec, env := get(t, router, "/api/v1/beatmaps/1/cohort")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("error = %+v", env.Error)
	}

	// Health probes are not limited.
	if rec, _ := get(t, router, "/api/v1/health/live"); rec.Code != http.StatusOK {
		t.Errorf("live status = %d, want 200", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter(NewHandler(&fakeEngine{}, nil, config.Default()))
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestNormalizeModsKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  ", ""},
		{"HD", "HD"},
		{"hd,dt", "DT,HD"},
		{"NC, HD ,HR", "HD,HR,NC"},
	}
	for _, tt := range tests {
		if got := normalizeModsKey(tt.in); got != tt.want {
			t.Errorf("normalizeModsKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

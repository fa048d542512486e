// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package cohort

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/cohortmart/internal/config"
)

func sampleRecs() []Recommendation {
	std := 1.5
	version := "Hard"
	return []Recommendation{
		{BeatmapID: 200, ModsKey: "", Overlap: 2, Population: 4, AvgPP: 210, StdPP: &std, Novelty: 0.5,
			Meta: &ItemMeta{BeatmapID: 200, Version: &version}},
		{BeatmapID: 300, ModsKey: "DT", Overlap: 1, Population: 1, AvgPP: 90},
	}
}

func TestNewCache(t *testing.T) {
	tests := []struct {
		backend  string
		wantName string
		wantErr  bool
	}{
		{backend: "none"},
		{backend: ""},
		{backend: "memory", wantName: "memory"},
		{backend: "redis", wantName: "redis"},
		{backend: "memcached", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := config.Default().Cache
			cfg.Backend = tt.backend
			cfg.RedisAddr = "127.0.0.1:1"

			c, err := NewCache(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantName == "" {
				if c != nil {
					t.Errorf("cache = %T, want nil", c)
				}
				return
			}
			if c == nil || c.Name() != tt.wantName {
				t.Errorf("cache = %v, want %s", c, tt.wantName)
			}
			if rc, ok := c.(*RedisCache); ok {
				_ = rc.Close()
			}
		})
	}
}

func TestMemoryCache_Copies(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(4, time.Minute)

	in := sampleRecs()
	c.Set(ctx, "k", in)
	*in[0].StdPP = 99
	*in[0].Meta.Version = "changed"

	out, ok := c.Get(ctx, "k")
	if !ok {
		t.Fatal("expected a hit")
	}
	if *out[0].StdPP != 1.5 || *out[0].Meta.Version != "Hard" {
		t.Errorf("cached entry aliased the caller's slice: %+v", out[0])
	}

	out[0].Overlap = 7
	again, _ := c.Get(ctx, "k")
	if again[0].Overlap != 2 {
		t.Errorf("cached entry aliased a previous result: overlap %d", again[0].Overlap)
	}

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Error("unexpected hit")
	}
}

func TestCloneRecommendations_DeepCopiesMeta(t *testing.T) {
	set, version, artist, title, stars := int64(7), "Hard", "artist", "title", 4.2
	in := []Recommendation{{BeatmapID: 200, Meta: &ItemMeta{
		BeatmapID:        200,
		BeatmapsetID:     &set,
		Version:          &version,
		DifficultyRating: &stars,
		Artist:           &artist,
		Title:            &title,
	}}}
	want := *in[0].Meta

	out := cloneRecommendations(in)
	*out[0].Meta.BeatmapsetID = 8
	*out[0].Meta.Version = "Insane"
	*out[0].Meta.DifficultyRating = 6
	*out[0].Meta.Artist = "other"
	*out[0].Meta.Title = "other"

	got := in[0].Meta
	if *got.BeatmapsetID != 7 || *got.Version != "Hard" || *got.DifficultyRating != 4.2 ||
		*got.Artist != "artist" || *got.Title != "title" {
		t.Errorf("source metadata changed through the clone: %+v", got)
	}
	if got.Version != want.Version {
		t.Error("source metadata pointer was replaced")
	}
	if cloneRecommendations(nil) != nil {
		t.Error("clone of nil is not nil")
	}
}

func TestMemoryCache_Purge(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(4, time.Millisecond)
	c.Set(ctx, "a", sampleRecs())
	c.Set(ctx, "b", nil)

	time.Sleep(5 * time.Millisecond)
	if n := c.Purge(); n != 2 {
		t.Errorf("Purge removed %d, want 2", n)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestRedisCache_DegradesToMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewRedisCache(client, "", time.Minute)
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		c.Set(ctx, "k", sampleRecs())
		if _, ok := c.Get(ctx, "k"); ok {
			t.Fatal("expected a miss from an unreachable server")
		}
	}
	if c.breaker.State().String() != "open" {
		t.Errorf("breaker state = %s, want open", c.breaker.State())
	}
}

func TestResolvedCacheKey(t *testing.T) {
	base := resolved{seed: 100, lower: 0, upper: DefaultUpper, minPop: 5, minOverlap: 1, limit: 100}
	noMod := base
	noMod.variant = Variant("")
	dt := base
	dt.variant = Variant("DT")
	narrow := base
	narrow.upper = 300

	keys := map[string]bool{}
	for _, r := range []resolved{base, noMod, dt, narrow} {
		keys[r.cacheKey()] = true
	}
	if len(keys) != 4 {
		t.Errorf("cache keys collide: %v", keys)
	}
}

// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

//go:build integration

package cohort

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/cohortmart/internal/testinfra"
)

func TestRedisCache_Integration(t *testing.T) {
	testinfra.SkipIfNoDocker(t)

	ctx := context.Background()
	container, err := testinfra.NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	defer testinfra.CleanupContainer(t, ctx, container)

	c := NewRedisCache(redis.NewClient(&redis.Options{Addr: container.Addr}), "test:", time.Minute)
	defer c.Close()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("unexpected hit on an empty server")
	}
	want := sampleRecs()
	c.Set(ctx, "k", want)

	got, ok := c.Get(ctx, "k")
	if !ok {
		t.Fatal("expected a hit")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

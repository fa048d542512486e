// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package shard

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeUploader struct {
	mu    sync.Mutex
	keys  []string
	sizes map[string]int
	err   error
	calls int
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.sizes == nil {
		f.sizes = make(map[string]int)
	}
	key := aws.ToString(in.Key)
	f.keys = append(f.keys, key)
	f.sizes[key] = len(data)
	return &manager.UploadOutput{Key: in.Key}, nil
}

func TestS3Mirror_MirrorTable(t *testing.T) {
	dir, m := committedTable(t)
	up := &fakeUploader{}
	mirror := NewMirrorWithUploader(up, MirrorOptions{Bucket: "dumps", Prefix: "2026-10"})

	if err := mirror.MirrorTable(context.Background(), dir, m); err != nil {
		t.Fatalf("MirrorTable() error = %v", err)
	}

	want := []string{
		"2026-10/sample_users/part-000000.parquet",
		"2026-10/sample_users/part-000001.parquet",
		"2026-10/sample_users/manifest.json",
	}
	if len(up.keys) != len(want) {
		t.Fatalf("uploaded %v, want %v", up.keys, want)
	}
	for i := range want {
		if up.keys[i] != want[i] {
			t.Errorf("upload %d = %s, want %s", i, up.keys[i], want[i])
		}
	}
	if got := up.sizes[want[0]]; int64(got) != m.Files[0].SizeBytes {
		t.Errorf("uploaded %d bytes, shard is %d", got, m.Files[0].SizeBytes)
	}
}

func TestS3Mirror_BreakerOpens(t *testing.T) {
	dir, m := committedTable(t)
	up := &fakeUploader{err: errors.New("connection reset")}
	mirror := NewMirrorWithUploader(up, MirrorOptions{
		Bucket:          "dumps",
		BreakerFailures: 2,
		BreakerTimeout:  time.Hour,
	})

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := mirror.MirrorTable(ctx, dir, m); err == nil {
			t.Fatal("MirrorTable() succeeded against a failing uploader")
		}
	}
	if up.calls != 2 {
		t.Errorf("uploader called %d times, want 2 before the breaker opened", up.calls)
	}
}

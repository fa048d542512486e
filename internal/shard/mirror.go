// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package shard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/cohortmart/internal/logging"
	"github.com/tomtom215/cohortmart/internal/metrics"
)

// Uploader is the subset of the S3 upload manager used by the mirror.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// MirrorOptions configures the S3 mirror.
type MirrorOptions struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint overrides the S3 endpoint (MinIO, LocalStack). Path-style
	// addressing is used when set.
	Endpoint string

	// PartSize is the multipart part size in bytes.
	// Default: 16 MiB
	PartSize int64

	// Concurrency is the number of parts uploaded in parallel per object.
	// Default: 4
	Concurrency int

	// BreakerFailures opens the circuit after this many consecutive failures.
	// Default: 3
	BreakerFailures uint32

	// BreakerTimeout is how long the circuit stays open.
	// Default: 30s
	BreakerTimeout time.Duration
}

// S3Mirror copies committed tables to object storage.
type S3Mirror struct {
	uploader Uploader
	bucket   string
	prefix   string
	breaker  *gobreaker.CircuitBreaker[*manager.UploadOutput]
}

// NewS3Mirror builds a mirror using the default AWS credential chain.
func NewS3Mirror(ctx context.Context, opts MirrorOptions) (*S3Mirror, error) {
	if opts.Bucket == "" {
		return nil, errors.New("mirror bucket is required")
	}
	if opts.PartSize <= 0 {
		opts.PartSize = 16 << 20
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = opts.PartSize
		u.Concurrency = opts.Concurrency
	})

	return NewMirrorWithUploader(uploader, opts), nil
}

// NewMirrorWithUploader builds a mirror around an existing uploader.
func NewMirrorWithUploader(u Uploader, opts MirrorOptions) *S3Mirror {
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	timeout := opts.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "shard-mirror",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Mirror circuit breaker state changed")
		},
	}

	return &S3Mirror{
		uploader: u,
		bucket:   opts.Bucket,
		prefix:   opts.Prefix,
		breaker:  gobreaker.NewCircuitBreaker[*manager.UploadOutput](settings),
	}
}

// ObjectKey returns the key a table file is mirrored to.
func (m *S3Mirror) ObjectKey(table, file string) string {
	return path.Join(m.prefix, table, file)
}

// MirrorTable uploads the shards of a committed table, then its manifest,
// so that a reader never sees a manifest naming a missing object.
func (m *S3Mirror) MirrorTable(ctx context.Context, dir string, manifest *Manifest) error {
	for _, f := range manifest.Files {
		meta := map[string]string{
			"table":     manifest.TableName,
			"rows":      strconv.FormatInt(f.Rows, 10),
			"sha256":    f.Hash,
			"first-seq": strconv.FormatInt(f.FirstSeq, 10),
		}
		if err := m.upload(ctx, manifest.TableName, filepath.Join(dir, f.File), f.File, "application/vnd.apache.parquet", meta); err != nil {
			return err
		}
	}

	meta := map[string]string{
		"table":      manifest.TableName,
		"total-rows": strconv.FormatInt(manifest.TotalRows, 10),
	}
	return m.upload(ctx, manifest.TableName, filepath.Join(dir, ManifestFile), ManifestFile, "application/json", meta)
}

func (m *S3Mirror) upload(ctx context.Context, table, localPath, name, contentType string, meta map[string]string) error {
	key := m.ObjectKey(table, name)

	_, err := m.breaker.Execute(func() (*manager.UploadOutput, error) {
		f, err := os.Open(localPath) //nolint:gosec // path from a committed manifest
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer func() { _ = f.Close() }()

		return m.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(m.bucket),
			Key:         aws.String(key),
			Body:        f,
			ContentType: aws.String(contentType),
			Metadata:    meta,
		})
	})
	metrics.RecordMirrorUpload(table, err)
	if err != nil {
		return fmt.Errorf("mirror s3://%s/%s: %w", m.bucket, key, err)
	}
	return nil
}

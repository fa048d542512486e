// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

/*
Package metrics holds the Prometheus instrumentation of the pipeline.

Collectors are registered with the default registry through promauto and
exposed by the serve command on /metrics. Packages record through the
Record* helpers rather than touching collectors directly.

Ingestion:
  - cohortmart_dump_rows_total{table}
  - cohortmart_dump_malformed_rows_total{table}
  - cohortmart_dump_skipped_statements_total{table}
  - cohortmart_dump_bytes_total{table}
  - cohortmart_shards_written_total{table}, cohortmart_shard_bytes_total{table}
  - cohortmart_ingest_duration_seconds{table,status}

Transform:
  - cohortmart_transform_layer_duration_seconds{layer}
  - cohortmart_transform_layer_rows{layer}
  - cohortmart_transform_blocked_tables_total{table}

Serving:
  - cohortmart_query_duration_seconds{operation,status}
  - cohortmart_cohort_size (histogram)
  - cohortmart_cache_requests_total{backend,result}
  - cohortmart_http_requests_total{method,route,status}
*/
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DumpRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohortmart_dump_rows_total",
			Help: "Rows emitted by the dump parser",
		},
		[]string{"table"},
	)

	DumpMalformedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohortmart_dump_malformed_rows_total",
			Help: "Rows dropped by the dump parser",
		},
		[]string{"table"},
	)

	DumpSkippedStatements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohortmart_dump_skipped_statements_total",
			Help: "Statements skipped by the dump parser",
		},
		[]string{"table"},
	)

	DumpBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohortmart_dump_bytes_total",
			Help: "Bytes read from dump sources",
		},
		[]string{"table"},
	)

	ShardsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohortmart_shards_written_total",
			Help: "Columnar shards committed",
		},
		[]string{"table"},
	)

	ShardBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohortmart_shard_bytes_total",
			Help: "Bytes of committed shards",
		},
		[]string{"table"},
	)

	MirrorUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohortmart_mirror_uploads_total",
			Help: "Shard mirror uploads by outcome",
		},
		[]string{"table", "status"},
	)

	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cohortmart_ingest_duration_seconds",
			Help:    "Wall time of a table ingestion",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"table", "status"},
	)

	TransformLayerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cohortmart_transform_layer_duration_seconds",
			Help:    "Wall time of a transform layer build",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"layer"},
	)

	TransformLayerRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cohortmart_transform_layer_rows",
			Help: "Rows in the last successful build of a layer",
		},
		[]string{"layer"},
	)

	TransformBlocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohortmart_transform_blocked_tables_total",
			Help: "Tables whose shards failed verification",
		},
		[]string{"table"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cohortmart_query_duration_seconds",
			Help:    "Latency of cohort queries",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation", "status"},
	)

	CohortSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cohortmart_cohort_size",
			Help:    "Members of extracted cohorts",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohortmart_cache_requests_total",
			Help: "Recommendation cache lookups",
		},
		[]string{"backend", "result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohortmart_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cohortmart_http_request_duration_seconds",
			Help:    "Latency of served HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cohortmart_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
	)
)

// RecordParse adds parser counter deltas for a table.
func RecordParse(table string, rows, malformed, skipped, bytes int64) {
	DumpRows.WithLabelValues(table).Add(float64(rows))
	DumpMalformedRows.WithLabelValues(table).Add(float64(malformed))
	DumpSkippedStatements.WithLabelValues(table).Add(float64(skipped))
	DumpBytes.WithLabelValues(table).Add(float64(bytes))
}

// RecordShard records one committed shard.
func RecordShard(table string, size int64) {
	ShardsWritten.WithLabelValues(table).Inc()
	ShardBytes.WithLabelValues(table).Add(float64(size))
}

// RecordMirrorUpload records the outcome of one object upload.
func RecordMirrorUpload(table string, err error) {
	MirrorUploads.WithLabelValues(table, status(err)).Inc()
}

// RecordIngest records the duration and outcome of a table ingestion.
func RecordIngest(table string, duration time.Duration, err error) {
	IngestDuration.WithLabelValues(table, status(err)).Observe(duration.Seconds())
}

// RecordTransformLayer records a layer build.
func RecordTransformLayer(layer string, duration time.Duration, rows int64) {
	TransformLayerDuration.WithLabelValues(layer).Observe(duration.Seconds())
	TransformLayerRows.WithLabelValues(layer).Set(float64(rows))
}

// RecordTransformBlocked records a table rejected by shard verification.
func RecordTransformBlocked(table string) {
	TransformBlocked.WithLabelValues(table).Inc()
}

// RecordQuery records a cohort query.
func RecordQuery(operation string, duration time.Duration, err error) {
	QueryDuration.WithLabelValues(operation, status(err)).Observe(duration.Seconds())
}

// RecordCohortSize records the size of an extracted cohort.
func RecordCohortSize(size int) {
	CohortSize.Observe(float64(size))
}

// RecordCacheLookup records a cache hit or miss for a backend.
func RecordCacheLookup(backend string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequests.WithLabelValues(backend, result).Inc()
}

// RecordHTTPRequest records a served request.
func RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackInFlight adjusts the in-flight request gauge.
func TrackInFlight(start bool) {
	if start {
		HTTPRequestsInFlight.Inc()
		return
	}
	HTTPRequestsInFlight.Dec()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

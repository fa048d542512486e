// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordParse(t *testing.T) {
	before := testutil.ToFloat64(DumpMalformedRows.WithLabelValues("test_parse"))

	RecordParse("test_parse", 10, 2, 1, 512)
	RecordParse("test_parse", 5, 1, 0, 128)

	if got := testutil.ToFloat64(DumpMalformedRows.WithLabelValues("test_parse")) - before; got != 3 {
		t.Errorf("malformed delta = %v, want 3", got)
	}
	if got := testutil.ToFloat64(DumpRows.WithLabelValues("test_parse")); got != 15 {
		t.Errorf("rows = %v, want 15", got)
	}
	if got := testutil.ToFloat64(DumpBytes.WithLabelValues("test_parse")); got != 640 {
		t.Errorf("bytes = %v, want 640", got)
	}
}

func TestRecordIngest_Status(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status string
	}{
		{"success", nil, "ok"},
		{"failure", errors.New("disk full"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordIngest("test_ingest", 2*time.Second, tt.err)

			var m dto.Metric
			obs := IngestDuration.WithLabelValues("test_ingest", tt.status)
			if err := obs.(prometheus.Histogram).Write(&m); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if got := m.GetHistogram().GetSampleCount(); got < 1 {
				t.Errorf("sample count = %d, want >= 1", got)
			}
		})
	}
}

func TestRecordCacheLookup(t *testing.T) {
	RecordCacheLookup("test_lru", true)
	RecordCacheLookup("test_lru", false)
	RecordCacheLookup("test_lru", false)

	if got := testutil.ToFloat64(CacheRequests.WithLabelValues("test_lru", "hit")); got != 1 {
		t.Errorf("hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(CacheRequests.WithLabelValues("test_lru", "miss")); got != 2 {
		t.Errorf("misses = %v, want 2", got)
	}
}

func TestRecordTransformLayer(t *testing.T) {
	RecordTransformLayer("test_layer", time.Second, 42)
	RecordTransformLayer("test_layer", time.Second, 40)

	if got := testutil.ToFloat64(TransformLayerRows.WithLabelValues("test_layer")); got != 40 {
		t.Errorf("layer rows = %v, want last value 40", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	RecordHTTPRequest("GET", "/test", 404, 20*time.Millisecond)
	if got := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/test", "404")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
}

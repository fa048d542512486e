// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package shard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tomtom215/cohortmart/internal/dump"
)

func committedTable(t *testing.T) (string, *Manifest) {
	t.Helper()
	root := t.TempDir()
	w, err := NewWriter(root, dump.MustLookup("sample_users"), Options{MaxShardRows: 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(context.Background(), userBatch(0, 4)); err != nil {
		t.Fatal(err)
	}
	m, err := w.Close()
	if err != nil {
		t.Fatal(err)
	}
	return TableDir(root, "sample_users"), m
}

func TestVerifyManifest(t *testing.T) {
	tests := []struct {
		name    string
		tamper  func(t *testing.T, dir string, m *Manifest)
		wantErr error
	}{
		{
			name:   "intact",
			tamper: func(*testing.T, string, *Manifest) {},
		},
		{
			name: "flipped byte",
			tamper: func(t *testing.T, dir string, m *Manifest) {
				path := filepath.Join(dir, m.Files[1].File)
				data, err := os.ReadFile(path)
				if err != nil {
					t.Fatal(err)
				}
				data[len(data)/2] ^= 0xff
				if err := os.WriteFile(path, data, 0o600); err != nil {
					t.Fatal(err)
				}
			},
			wantErr: ErrChecksumMismatch,
		},
		{
			name: "truncated shard",
			tamper: func(t *testing.T, dir string, m *Manifest) {
				if err := os.Truncate(filepath.Join(dir, m.Files[0].File), 10); err != nil {
					t.Fatal(err)
				}
			},
			wantErr: ErrChecksumMismatch,
		},
		{
			name: "missing shard",
			tamper: func(t *testing.T, dir string, m *Manifest) {
				if err := os.Remove(filepath.Join(dir, m.Files[0].File)); err != nil {
					t.Fatal(err)
				}
			},
			wantErr: ErrMissingShard,
		},
		{
			name: "wrong shard rows",
			tamper: func(_ *testing.T, _ string, m *Manifest) {
				m.Files[0].Rows = 5
				m.TotalRows = 7
			},
			wantErr: ErrRowCountMismatch,
		},
		{
			name: "wrong total",
			tamper: func(_ *testing.T, _ string, m *Manifest) {
				m.TotalRows = 3
			},
			wantErr: ErrRowCountMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, m := committedTable(t)
			tt.tamper(t, dir, m)

			err := VerifyManifest(dir, m)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("VerifyManifest() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifyManifest() error = %v, want %v", err, tt.wantErr)
			}
			if !IsIntegrityError(err) {
				t.Errorf("IsIntegrityError(%v) = false", err)
			}
		})
	}
}

func TestManifest_Totals(t *testing.T) {
	dir, m := committedTable(t)

	var sum int64
	for _, f := range m.Files {
		sum += f.Rows
	}
	if sum != m.TotalRows {
		t.Errorf("sum of shard rows = %d, TotalRows = %d", sum, m.TotalRows)
	}
	if m.SizeBytes() <= 0 {
		t.Errorf("SizeBytes() = %d", m.SizeBytes())
	}
	paths := m.Paths(dir)
	if len(paths) != 2 || filepath.Base(paths[0]) != "part-000000.parquet" {
		t.Errorf("Paths() = %v", paths)
	}
}

func TestReadManifest_Missing(t *testing.T) {
	if _, err := ReadManifest(t.TempDir()); err == nil {
		t.Error("ReadManifest() on empty dir returned nil error")
	}
}

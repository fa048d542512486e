// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/goccy/go-json"

	"github.com/tomtom215/cohortmart/internal/dump"
)

const (
	// ManifestFile is the manifest name inside a table directory.
	ManifestFile = "manifest.json"

	// ManifestVersion is the manifest format version.
	ManifestVersion = "1.0"

	hashPrefix = "sha256:"
)

var (
	// ErrChecksumMismatch means a shard's bytes differ from its manifest entry.
	ErrChecksumMismatch = errors.New("shard checksum mismatch")

	// ErrRowCountMismatch means shard row counts disagree with the manifest.
	ErrRowCountMismatch = errors.New("shard row count mismatch")

	// ErrMissingShard means a shard listed in the manifest does not exist.
	ErrMissingShard = errors.New("shard missing")
)

// FileEntry describes one committed shard.
type FileEntry struct {
	File      string `json:"file"`
	Rows      int64  `json:"rows"`
	SizeBytes int64  `json:"size_bytes"`
	Hash      string `json:"hash"`
	FirstSeq  int64  `json:"first_seq"`
}

// ColumnSpec is the manifest form of a column.
type ColumnSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// SourceInfo identifies the dump file a table was materialized from.
type SourceInfo struct {
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// Manifest lists the shards of one table. TotalRows always equals the sum
// of the shard row counts.
type Manifest struct {
	TableName     string       `json:"table_name"`
	Version       string       `json:"version"`
	CreatedAt     time.Time    `json:"created_at"`
	Files         []FileEntry  `json:"files"`
	TotalRows     int64        `json:"total_rows"`
	MalformedRows int64        `json:"malformed_rows"`
	Schema        []ColumnSpec `json:"schema"`
	Source        *SourceInfo  `json:"source,omitempty"`
}

func newManifest(table *dump.Table) *Manifest {
	schema := make([]ColumnSpec, 0, len(table.Columns)+1)
	for _, c := range table.Columns {
		schema = append(schema, ColumnSpec{Name: c.Name, Type: c.Type.String(), Nullable: c.Nullable})
	}
	schema = append(schema, ColumnSpec{Name: SeqColumn, Type: dump.TypeInt64.String()})

	return &Manifest{
		TableName: table.Name,
		Version:   ManifestVersion,
		CreatedAt: time.Now().UTC(),
		Files:     []FileEntry{},
		Schema:    schema,
	}
}

func (m *Manifest) add(e FileEntry) {
	m.Files = append(m.Files, e)
	m.TotalRows += e.Rows
}

// Paths returns the absolute shard paths of the manifest in shard order.
func (m *Manifest) Paths(dir string) []string {
	paths := make([]string, len(m.Files))
	for i, f := range m.Files {
		paths[i] = filepath.Join(dir, f.File)
	}
	return paths
}

// SizeBytes returns the total size of all shards.
func (m *Manifest) SizeBytes() int64 {
	var n int64
	for _, f := range m.Files {
		n += f.SizeBytes
	}
	return n
}

// ReadManifest loads the manifest of a table directory.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", dir, err)
	}
	return &m, nil
}

// writeManifest replaces the manifest of dir atomically.
func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, ManifestFile), data)
}

// VerifyManifest checks every shard of m against its recorded size, hash
// and row count. Failures wrap ErrMissingShard, ErrChecksumMismatch or
// ErrRowCountMismatch.
func VerifyManifest(dir string, m *Manifest) error {
	var total int64
	for _, f := range m.Files {
		path := filepath.Join(dir, f.File)

		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingShard, path)
		}
		if err != nil {
			return fmt.Errorf("stat shard: %w", err)
		}
		if info.Size() != f.SizeBytes {
			return fmt.Errorf("%w: %s is %d bytes, manifest says %d", ErrChecksumMismatch, f.File, info.Size(), f.SizeBytes)
		}

		sum, err := hashFile(path)
		if err != nil {
			return err
		}
		if sum != f.Hash {
			return fmt.Errorf("%w: %s", ErrChecksumMismatch, f.File)
		}

		rows, err := parquetRows(path)
		if err != nil {
			return err
		}
		if rows != f.Rows {
			return fmt.Errorf("%w: %s holds %d rows, manifest says %d", ErrRowCountMismatch, f.File, rows, f.Rows)
		}
		total += rows
	}

	if total != m.TotalRows {
		return fmt.Errorf("%w: shards hold %d rows, manifest total is %d", ErrRowCountMismatch, total, m.TotalRows)
	}
	return nil
}

// IsIntegrityError reports whether err is a verification failure rather
// than an I/O error.
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrRowCountMismatch) || errors.Is(err, ErrMissingShard)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open shard: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash shard: %w", err)
	}
	return hashPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

func parquetRows(path string) (int64, error) {
	r, err := file.OpenParquetFile(path, false)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", ErrChecksumMismatch, filepath.Base(path), err)
	}
	defer func() { _ = r.Close() }()
	return r.NumRows(), nil
}

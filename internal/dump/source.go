// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package dump

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression of a source file, inferred from its extension.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// Source is a dump file on disk bound to its table.
type Source struct {
	Path        string
	Table       *Table
	Compression Compression
	Size        int64
	ModTime     time.Time
}

// ResolveSource binds a dump file to a table using the file name:
// scores.sql, scores.sql.gz, osu_beatmaps.sql.zst and beatmaps.sql.lz4
// are all recognized.
func ResolveSource(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Source{}, fmt.Errorf("stat dump file: %w", err)
	}
	if info.IsDir() {
		return Source{}, fmt.Errorf("dump file %s is a directory", path)
	}

	stem, comp := splitName(filepath.Base(path))
	table, err := Lookup(stem)
	if err != nil {
		return Source{}, fmt.Errorf("dump file %s: %w", path, err)
	}

	return Source{
		Path:        path,
		Table:       table,
		Compression: comp,
		Size:        info.Size(),
		ModTime:     info.ModTime().UTC(),
	}, nil
}

// Discover returns every recognized dump file in dir, ordered by table name.
// Files that do not name a known table are ignored.
func Discover(dir string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dump directory: %w", err)
	}

	var sources []Source
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stem, _ := splitName(e.Name())
		if _, err := Lookup(stem); err != nil {
			continue
		}
		src, err := ResolveSource(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Table.Name != sources[j].Table.Name {
			return sources[i].Table.Name < sources[j].Table.Name
		}
		return sources[i].Path < sources[j].Path
	})
	return sources, nil
}

func splitName(name string) (stem string, comp Compression) {
	comp = CompressionNone
	switch {
	case strings.HasSuffix(name, ".gz"):
		comp, name = CompressionGzip, strings.TrimSuffix(name, ".gz")
	case strings.HasSuffix(name, ".zst"):
		comp, name = CompressionZstd, strings.TrimSuffix(name, ".zst")
	case strings.HasSuffix(name, ".lz4"):
		comp, name = CompressionLZ4, strings.TrimSuffix(name, ".lz4")
	}
	return strings.TrimSuffix(name, ".sql"), comp
}

// Open returns a reader over the decompressed dump.
func (s Source) Open() (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open dump file: %w", err)
	}

	switch s.Compression {
	case CompressionGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil

	case CompressionZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr.IOReadCloser(), f}}, nil

	case CompressionLZ4:
		return &stackedCloser{Reader: lz4.NewReader(f), closers: []io.Closer{f}}, nil

	default:
		return f, nil
	}
}

// stackedCloser closes a decompressor before the file beneath it.
type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

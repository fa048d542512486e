// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package shard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/tomtom215/cohortmart/internal/dump"
	"github.com/tomtom215/cohortmart/internal/logging"
	"github.com/tomtom215/cohortmart/internal/metrics"
)

// ErrWriterClosed is returned by Write after Close or Abort.
var ErrWriterClosed = errors.New("shard writer closed")

const partialSuffix = ".partial"

// Options controls shard layout.
type Options struct {
	// MaxShardRows splits a shard once it holds this many rows.
	// Default: 2000000
	MaxShardRows int64

	// RowGroupRows is the parquet row group length.
	// Default: 500000
	RowGroupRows int64

	// Compression is snappy, zstd, gzip or none.
	// Default: snappy
	Compression string
}

// DefaultOptions returns the default shard options.
func DefaultOptions() Options {
	return Options{
		MaxShardRows: 2_000_000,
		RowGroupRows: 500_000,
		Compression:  "snappy",
	}
}

// ValidCompression reports whether name is a supported shard codec.
func ValidCompression(name string) bool {
	_, err := codec(name)
	return err == nil
}

func codec(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unsupported shard compression %q", name)
	}
}

// TableDir returns the committed directory of a table under root.
func TableDir(root, table string) string {
	return filepath.Join(root, table)
}

// openShard is the shard currently being written.
type openShard struct {
	name     string
	tmp      string
	f        *os.File
	sink     *hashingWriter
	fw       *pqarrow.FileWriter
	rows     int64
	firstSeq int64
}

// Writer materializes the batches of one table as parquet shards, at least
// one per non-empty batch. Shards accumulate in a staging directory that replaces the table directory on
// Close. A Writer is not safe for concurrent use.
type Writer struct {
	table  *dump.Table
	final  string
	work   string
	opts   Options
	codec  compress.Compression
	schema *arrow.Schema
	pool   memory.Allocator

	builder  *array.RecordBuilder
	buffered int64

	cur      *openShard
	next     int
	manifest *Manifest
	closed   bool
}

// NewWriter prepares a writer for table under root. Any staging left by an
// earlier failed run is discarded.
func NewWriter(root string, table *dump.Table, opts Options) (*Writer, error) {
	def := DefaultOptions()
	if opts.MaxShardRows <= 0 {
		opts.MaxShardRows = def.MaxShardRows
	}
	if opts.RowGroupRows <= 0 {
		opts.RowGroupRows = def.RowGroupRows
	}
	if opts.RowGroupRows > opts.MaxShardRows {
		opts.RowGroupRows = opts.MaxShardRows
	}
	c, err := codec(opts.Compression)
	if err != nil {
		return nil, err
	}

	final := TableDir(root, table.Name)
	work := final + partialSuffix
	if err := os.RemoveAll(work); err != nil {
		return nil, fmt.Errorf("clear staging for %s: %w", table.Name, err)
	}
	if err := os.MkdirAll(work, 0o755); err != nil { //nolint:gosec // shard output is world-readable
		return nil, fmt.Errorf("create staging for %s: %w", table.Name, err)
	}

	pool := memory.NewGoAllocator()
	schema := ArrowSchema(table)

	return &Writer{
		table:    table,
		final:    final,
		work:     work,
		opts:     opts,
		codec:    c,
		schema:   schema,
		pool:     pool,
		builder:  array.NewRecordBuilder(pool, schema),
		manifest: newManifest(table),
	}, nil
}

// Dir returns the directory the table is committed to.
func (w *Writer) Dir() string { return w.final }

// Describe records provenance carried into the manifest.
func (w *Writer) Describe(src *SourceInfo, malformed int64) {
	w.manifest.Source = src
	w.manifest.MalformedRows = malformed
}

// Write materializes a batch as one shard, split into several when it holds
// more than MaxShardRows rows. Rows keep their parse ordinals so that later
// layers can break ties by parse order.
func (w *Writer) Write(ctx context.Context, b *dump.Batch) error {
	if w.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.Table != nil && b.Table.Name != w.table.Name {
		return fmt.Errorf("batch for table %s written to %s shards", b.Table.Name, w.table.Name)
	}

	for i, row := range b.Rows {
		seq := b.FirstSeq + int64(i)
		if w.cur == nil {
			if err := w.openShard(seq); err != nil {
				return err
			}
		}
		if err := appendRow(w.builder, row, seq); err != nil {
			return fmt.Errorf("append %s row %d: %w", w.table.Name, seq, err)
		}
		w.buffered++
		w.cur.rows++

		if w.buffered >= w.opts.RowGroupRows {
			if err := w.flushGroup(); err != nil {
				return err
			}
		}
		if w.cur.rows >= w.opts.MaxShardRows {
			if err := w.finishShard(); err != nil {
				return err
			}
		}
	}
	return w.finishShard()
}

func (w *Writer) openShard(firstSeq int64) error {
	name := fmt.Sprintf("part-%06d.parquet", w.next)
	tmp := filepath.Join(w.work, name+".tmp")

	f, err := os.Create(tmp) //nolint:gosec // path built from the staging dir
	if err != nil {
		return fmt.Errorf("create shard %s: %w", name, err)
	}

	sink := &hashingWriter{f: f, h: sha256.New()}
	props := parquet.NewWriterProperties(
		parquet.WithCompression(w.codec),
		parquet.WithDictionaryDefault(true),
		parquet.WithStats(true),
		parquet.WithMaxRowGroupLength(w.opts.RowGroupRows),
		parquet.WithCreatedBy("cohortmart"),
	)
	fw, err := pqarrow.NewFileWriter(w.schema, sink, props,
		pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(w.pool)))
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("open parquet writer for %s: %w", name, err)
	}

	w.cur = &openShard{name: name, tmp: tmp, f: f, sink: sink, fw: fw, firstSeq: firstSeq}
	w.next++
	return nil
}

func (w *Writer) flushGroup() error {
	if w.buffered == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	w.buffered = 0

	if err := w.cur.fw.Write(rec); err != nil {
		return fmt.Errorf("write shard %s: %w", w.cur.name, err)
	}
	return nil
}

// finishShard seals the open shard: footer, fsync, rename, directory fsync,
// then the manifest rewrite.
func (w *Writer) finishShard() error {
	if w.cur == nil {
		return nil
	}
	s := w.cur
	err := w.flushGroup()
	w.cur = nil
	if err != nil {
		_ = s.f.Close()
		return err
	}
	if err := s.fw.Close(); err != nil {
		_ = s.f.Close()
		return fmt.Errorf("close parquet writer %s: %w", s.name, err)
	}
	if err := s.f.Sync(); err != nil {
		_ = s.f.Close()
		return fmt.Errorf("sync shard %s: %w", s.name, err)
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("close shard %s: %w", s.name, err)
	}
	if err := os.Rename(s.tmp, filepath.Join(w.work, s.name)); err != nil {
		return fmt.Errorf("rename shard %s: %w", s.name, err)
	}
	if err := syncDir(w.work); err != nil {
		return err
	}

	w.manifest.add(FileEntry{
		File:      s.name,
		Rows:      s.rows,
		SizeBytes: s.sink.size,
		Hash:      hashPrefix + hex.EncodeToString(s.sink.h.Sum(nil)),
		FirstSeq:  s.firstSeq,
	})
	if err := writeManifest(w.work, w.manifest); err != nil {
		return err
	}

	metrics.RecordShard(w.table.Name, s.sink.size)
	logging.Debug().
		Str("table", w.table.Name).
		Str("shard", s.name).
		Int64("rows", s.rows).
		Int64("bytes", s.sink.size).
		Msg("Shard committed")
	return nil
}

// Close seals the last shard, writes the final manifest and swaps the
// staging directory into place.
func (w *Writer) Close() (*Manifest, error) {
	if w.closed {
		return nil, ErrWriterClosed
	}
	w.closed = true
	defer w.builder.Release()

	err := w.finishShard()
	if err == nil {
		err = writeManifest(w.work, w.manifest)
	}
	if err == nil {
		err = swapDir(w.work, w.final)
	}
	if err != nil {
		_ = os.RemoveAll(w.work)
		return nil, err
	}
	return w.manifest, nil
}

// Abort discards everything written so far. The committed directory of the
// table is left untouched.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.builder.Release()

	if w.cur != nil {
		_ = w.cur.f.Close()
		w.cur = nil
	}
	if err := os.RemoveAll(w.work); err != nil {
		return fmt.Errorf("remove staging for %s: %w", w.table.Name, err)
	}
	return nil
}

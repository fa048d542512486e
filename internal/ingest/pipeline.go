// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tomtom215/cohortmart/internal/config"
	"github.com/tomtom215/cohortmart/internal/dump"
	"github.com/tomtom215/cohortmart/internal/logging"
	"github.com/tomtom215/cohortmart/internal/metrics"
	"github.com/tomtom215/cohortmart/internal/shard"
)

// Mirror copies a committed table elsewhere. *shard.S3Mirror satisfies it.
type Mirror interface {
	MirrorTable(ctx context.Context, dir string, manifest *shard.Manifest) error
}

// Pipeline parses dump files and materializes them as shard tables, one
// goroutine per table.
type Pipeline struct {
	cfg       config.IngestConfig
	outputDir string
	shardOpts shard.Options
	ledger    Ledger
	mirror    Mirror
	force     bool

	mu      sync.Mutex
	running bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLedger skips sources recorded as already ingested.
func WithLedger(l Ledger) Option {
	return func(p *Pipeline) { p.ledger = l }
}

// WithMirror copies every freshly committed table through m.
func WithMirror(m Mirror) Option {
	return func(p *Pipeline) { p.mirror = m }
}

// WithForce ingests every source even when the ledger says it is unchanged.
func WithForce(force bool) Option {
	return func(p *Pipeline) { p.force = force }
}

// NewPipeline creates a pipeline from the ingest and shard sections of cfg.
func NewPipeline(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("ingest pipeline requires a config")
	}
	if cfg.Shard.OutputDir == "" {
		return nil, errors.New("shard output directory is not set")
	}
	p := &Pipeline{
		cfg:       cfg.Ingest,
		outputDir: cfg.Shard.OutputDir,
		shardOpts: shard.Options{
			MaxShardRows: cfg.Shard.MaxShardRows,
			RowGroupRows: cfg.Shard.RowGroupRows,
			Compression:  cfg.Shard.Compression,
		},
	}
	if p.cfg.Concurrency <= 0 {
		p.cfg.Concurrency = 1
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Sources discovers the dump files of the configured source directory,
// restricted to the configured tables.
func (p *Pipeline) Sources() ([]dump.Source, error) {
	if p.cfg.SourceDir == "" {
		return nil, errors.New("ingest source directory is not set")
	}
	all, err := dump.Discover(p.cfg.SourceDir)
	if err != nil {
		return nil, err
	}
	if len(p.cfg.Tables) == 0 {
		return all, nil
	}

	want := make(map[string]bool, len(p.cfg.Tables))
	for _, name := range p.cfg.Tables {
		t, err := dump.Lookup(name)
		if err != nil {
			return nil, err
		}
		want[t.Name] = true
	}
	var out []dump.Source
	for _, s := range all {
		if want[s.Table.Name] {
			out = append(out, s)
			delete(want, s.Table.Name)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for name := range want {
			missing = append(missing, name)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("no dump file for tables %v in %s", missing, p.cfg.SourceDir)
	}
	return out, nil
}

// RunDir ingests every source found by Sources.
func (p *Pipeline) RunDir(ctx context.Context) (*Result, error) {
	sources, err := p.Sources()
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, sources)
}

// Run ingests sources concurrently. A failing table does not stop the
// others; the returned error joins every table failure and the Result
// still reports the tables that committed.
func (p *Pipeline) Run(ctx context.Context, sources []dump.Source) (*Result, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, errors.New("ingestion already in progress")
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	seen := make(map[string]string, len(sources))
	for _, s := range sources {
		if prev, dup := seen[s.Table.Name]; dup {
			return nil, fmt.Errorf("table %s has two sources: %s and %s", s.Table.Name, prev, s.Path)
		}
		seen[s.Table.Name] = s.Path
	}

	res := &Result{
		RunID:     logging.NewRunID(),
		StartTime: time.Now(),
		Tables:    make([]TableResult, len(sources)),
	}
	ctx = logging.ContextWithRunID(ctx, res.RunID)
	logging.Ctx(ctx).Info().
		Int("sources", len(sources)).
		Int("concurrency", p.cfg.Concurrency).
		Bool("force", p.force).
		Msg("Ingestion started")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			res.Tables[i] = p.ingestTable(gctx, res.RunID, src)
			// Table failures are reported per table; only cancellation
			// stops the group.
			return ctx.Err()
		})
	}
	groupErr := g.Wait()
	res.EndTime = time.Now()

	sort.SliceStable(res.Tables, func(i, j int) bool { return res.Tables[i].Table < res.Tables[j].Table })

	err := errors.Join(groupErr, res.Err())
	ev := logging.Ctx(ctx).Info()
	if err != nil {
		ev = logging.Ctx(ctx).Error().Err(err).Strs("failed", res.Failed())
	}
	ev.Dur("duration", res.Duration()).Int("tables", len(res.Tables)).Msg("Ingestion finished")
	return res, err
}

func (p *Pipeline) ingestTable(ctx context.Context, runID string, src dump.Source) TableResult {
	start := time.Now()
	tr := TableResult{Table: src.Table.Name, Source: src.Path}
	log := logging.Ctx(ctx).With().Str("table", src.Table.Name).Logger()

	if entry := p.unchanged(ctx, src); entry != nil {
		m, err := shard.ReadManifest(entry.Dir)
		if err == nil && m.TotalRows == entry.TotalRows {
			tr.Status = StatusUnchanged
			tr.Dir = entry.Dir
			tr.Manifest = m
			tr.Rows = m.TotalRows
			tr.Malformed = m.MalformedRows
			tr.Duration = time.Since(start)
			log.Info().Str("source", src.Path).Msg("Source unchanged, keeping committed shards")
			return tr
		}
		log.Warn().Err(err).Msg("Ledger entry does not match committed shards, re-ingesting")
	}

	err := p.materialize(ctx, src, &tr)
	tr.Duration = time.Since(start)
	metrics.RecordIngest(tr.Table, tr.Duration, err)
	if err != nil {
		tr.fail(err)
		log.Error().Err(err).Str("source", src.Path).Msg("Table ingestion failed")
		return tr
	}
	tr.Status = StatusIngested

	if p.mirror != nil {
		if err := p.mirror.MirrorTable(ctx, tr.Dir, tr.Manifest); err != nil {
			log.Warn().Err(err).Msg("Mirror upload failed, local shards are committed")
		} else {
			tr.Mirrored = true
		}
	}

	if p.ledger != nil {
		entry := &LedgerEntry{
			Table:         tr.Table,
			SourcePath:    src.Path,
			SourceSize:    src.Size,
			SourceModTime: src.ModTime,
			Dir:           tr.Dir,
			TotalRows:     tr.Manifest.TotalRows,
			RunID:         runID,
			IngestedAt:    time.Now().UTC(),
		}
		if err := p.ledger.Record(ctx, entry); err != nil {
			log.Warn().Err(err).Msg("Failed to record ledger entry")
		}
	}

	if tr.Truncated > 0 {
		log.Warn().
			Int64("truncated", tr.Truncated).
			Int("max_literal_bytes", p.cfg.MaxLiteralBytes).
			Msg("Input ended inside an oversized literal, rows after it were not counted")
	}
	log.Info().
		Int64("rows", tr.Rows).
		Int64("malformed", tr.Malformed).
		Int64("skipped_statements", tr.SkippedStatements).
		Int("shards", len(tr.Manifest.Files)).
		Float64("rows_per_second", tr.RowsPerSecond()).
		Dur("duration", tr.Duration).
		Msg("Table committed")
	return tr
}

// unchanged returns the ledger entry of src when it may be skipped.
func (p *Pipeline) unchanged(ctx context.Context, src dump.Source) *LedgerEntry {
	if p.ledger == nil || p.force {
		return nil
	}
	entry, err := p.ledger.Lookup(ctx, src.Table.Name)
	if err != nil {
		logging.Warn().Err(err).Str("table", src.Table.Name).Msg("Ledger lookup failed")
		return nil
	}
	if entry == nil || !entry.Matches(src) {
		return nil
	}
	return entry
}

// materialize streams one source through the parser into a shard writer.
// The committed table is replaced only when every batch was written.
func (p *Pipeline) materialize(ctx context.Context, src dump.Source, tr *TableResult) (err error) {
	in, err := src.Open()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := in.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", src.Path, cerr)
		}
	}()

	w, err := shard.NewWriter(p.outputDir, src.Table, p.shardOpts)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			if aerr := w.Abort(); aerr != nil {
				logging.Warn().Err(aerr).Str("table", src.Table.Name).Msg("Failed to discard staging shards")
			}
		}
	}()

	parser := dump.NewParser(in, src.Table, dump.Options{
		BatchSize:       p.cfg.BatchSize,
		BufferSize:      p.cfg.BufferSize,
		MaxLiteralBytes: p.cfg.MaxLiteralBytes,
	})

	progress := rate.Sometimes{Interval: p.cfg.ProgressInterval}
	if p.cfg.ProgressInterval <= 0 {
		progress = rate.Sometimes{Interval: 10 * time.Second}
	}

	var reported dump.Stats
	defer func() {
		s := parser.Stats()
		tr.applyStats(s)
		metrics.RecordParse(src.Table.Name,
			s.Rows-reported.Rows,
			s.Malformed-reported.Malformed,
			s.SkippedStatements-reported.SkippedStatements,
			s.Bytes-reported.Bytes)
	}()

	for {
		batch, err := parser.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := w.Write(ctx, batch); err != nil {
			return err
		}

		progress.Do(func() {
			s := parser.Stats()
			metrics.RecordParse(src.Table.Name,
				s.Rows-reported.Rows,
				s.Malformed-reported.Malformed,
				s.SkippedStatements-reported.SkippedStatements,
				s.Bytes-reported.Bytes)
			reported = s

			ev := logging.Ctx(ctx).Info().
				Str("table", src.Table.Name).
				Int64("rows", s.Rows).
				Int64("malformed", s.Malformed).
				Int64("bytes", s.Bytes)
			if src.Compression == dump.CompressionNone && src.Size > 0 {
				ev = ev.Float64("progress_percent", float64(s.Bytes)/float64(src.Size)*100)
			}
			ev.Msg("Ingestion progress")
		})
	}

	w.Describe(&shard.SourceInfo{
		Path:      src.Path,
		SizeBytes: src.Size,
		ModTime:   src.ModTime,
	}, parser.Malformed())

	m, err := w.Close()
	if err != nil {
		return err
	}
	committed = true
	tr.Dir = w.Dir()
	tr.Manifest = m
	return nil
}

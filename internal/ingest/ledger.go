// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/cohortmart/internal/dump"
	"github.com/tomtom215/cohortmart/internal/logging"
)

const ledgerKeyPrefix = "ingest:table:"

// LedgerEntry records the source a committed table was built from.
type LedgerEntry struct {
	Table         string    `json:"table"`
	SourcePath    string    `json:"source_path"`
	SourceSize    int64     `json:"source_size"`
	SourceModTime time.Time `json:"source_mod_time"`
	Dir           string    `json:"dir"`
	TotalRows     int64     `json:"total_rows"`
	RunID         string    `json:"run_id"`
	IngestedAt    time.Time `json:"ingested_at"`
}

// Matches reports whether src is the same file the entry was built from.
func (e *LedgerEntry) Matches(src dump.Source) bool {
	return e.SourcePath == src.Path &&
		e.SourceSize == src.Size &&
		e.SourceModTime.Equal(src.ModTime)
}

// Ledger remembers which sources have been ingested so that unchanged dumps
// are not parsed again.
type Ledger interface {
	// Lookup returns the entry of a table, or nil when there is none.
	Lookup(ctx context.Context, table string) (*LedgerEntry, error)

	// Record stores the entry of a freshly committed table.
	Record(ctx context.Context, entry *LedgerEntry) error

	// Forget removes the entry of a table.
	Forget(ctx context.Context, table string) error
}

// BadgerLedger persists ledger entries in BadgerDB.
type BadgerLedger struct {
	db    *badger.DB
	owned bool
}

// NewBadgerLedger uses an open BadgerDB. The caller keeps ownership of db.
func NewBadgerLedger(db *badger.DB) *BadgerLedger {
	return &BadgerLedger{db: db}
}

// OpenBadgerLedger opens or creates a ledger directory. An empty path opens
// an in-memory ledger.
func OpenBadgerLedger(path string) (*BadgerLedger, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{}).WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &BadgerLedger{db: db, owned: true}, nil
}

// Lookup implements Ledger.
func (l *BadgerLedger) Lookup(_ context.Context, table string) (*LedgerEntry, error) {
	var entry *LedgerEntry

	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(ledgerKeyPrefix + table))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			entry = &LedgerEntry{}
			return json.Unmarshal(val, entry)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load ledger entry for %s: %w", table, err)
	}
	return entry, nil
}

// Record implements Ledger.
func (l *BadgerLedger) Record(_ context.Context, entry *LedgerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(ledgerKeyPrefix+entry.Table), data)
	})
}

// Forget implements Ledger.
func (l *BadgerLedger) Forget(_ context.Context, table string) error {
	return l.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(ledgerKeyPrefix + table))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Entries returns every recorded entry.
func (l *BadgerLedger) Entries(_ context.Context) ([]LedgerEntry, error) {
	var out []LedgerEntry
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(ledgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var e LedgerEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	return out, nil
}

// Close closes the database if the ledger opened it.
func (l *BadgerLedger) Close() error {
	if !l.owned {
		return nil
	}
	return l.db.Close()
}

// MemoryLedger keeps entries for the lifetime of the process.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]LedgerEntry
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]LedgerEntry)}
}

func (l *MemoryLedger) Lookup(_ context.Context, table string) (*LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[table]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (l *MemoryLedger) Record(_ context.Context, entry *LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[entry.Table] = *entry
	return nil
}

func (l *MemoryLedger) Forget(_ context.Context, table string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, table)
	return nil
}

// badgerLogger routes badger's log output through zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	logging.Error().Str("component", "ledger").Msgf(format, args...)
}

func (badgerLogger) Warningf(format string, args ...any) {
	logging.Warn().Str("component", "ledger").Msgf(format, args...)
}

func (badgerLogger) Infof(format string, args ...any) {
	logging.Debug().Str("component", "ledger").Msgf(format, args...)
}

func (badgerLogger) Debugf(format string, args ...any) {
	logging.Trace().Str("component", "ledger").Msgf(format, args...)
}

// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package shard

import (
	"fmt"
	"hash"
	"os"
	"path/filepath"
)

// hashingWriter hashes and counts everything written through it. It has no
// Close method so that the parquet writer cannot close the file under it.
type hashingWriter struct {
	f    *os.File
	h    hash.Hash
	size int64
}

func (w *hashingWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.h.Write(p[:n])
	w.size += int64(n)
	return n, err
}

// writeFileAtomic writes data to a temp file next to path, syncs it and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644) //nolint:gosec // shard output is world-readable
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(tmp), err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", filepath.Base(tmp), err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return syncDir(filepath.Dir(path))
}

// syncDir makes a rename inside dir durable.
func syncDir(dir string) error {
	d, err := os.Open(dir) //nolint:gosec // dir is an output directory we created
	if err != nil {
		return fmt.Errorf("open dir: %w", err)
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir %s: %w", dir, err)
	}
	return nil
}

// swapDir replaces final with staged. The previous contents of final are
// removed only after staged is in place.
func swapDir(staged, final string) error {
	old := final + ".old"
	if err := os.RemoveAll(old); err != nil {
		return fmt.Errorf("remove stale %s: %w", filepath.Base(old), err)
	}

	hadPrevious := false
	if _, err := os.Stat(final); err == nil {
		if err := os.Rename(final, old); err != nil {
			return fmt.Errorf("move aside %s: %w", filepath.Base(final), err)
		}
		hadPrevious = true
	}

	if err := os.Rename(staged, final); err != nil {
		if hadPrevious {
			_ = os.Rename(old, final)
		}
		return fmt.Errorf("commit %s: %w", filepath.Base(final), err)
	}
	if err := syncDir(filepath.Dir(final)); err != nil {
		return err
	}

	if hadPrevious {
		if err := os.RemoveAll(old); err != nil {
			return fmt.Errorf("remove %s: %w", filepath.Base(old), err)
		}
	}
	return nil
}

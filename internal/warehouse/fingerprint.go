// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package warehouse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
)

// LayerFingerprint hashes the contents of a layer in a fixed row order.
// Two builds from the same inputs yield the same fingerprint.
func (db *DB) LayerFingerprint(ctx context.Context, table string) (string, error) {
	order, ok := fingerprintOrder[table]
	if !ok {
		order = "ALL"
	}

	exists, err := tableExists(ctx, db.conn, table)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrNotBuilt, table)
	}

	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY %s", quoteIdent(table), order))
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", table, err)
	}
	defer closeWithLog(rows, "fingerprint rows")

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, c := range cols {
		writeField(h, c)
	}
	_, _ = h.Write([]byte{'\n'})

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return "", fmt.Errorf("scan %s: %w", table, err)
		}
		for _, v := range vals {
			writeValue(h, v)
		}
		_, _ = h.Write([]byte{'\n'})
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate %s: %w", table, err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

func writeField(w io.Writer, s string) {
	_, _ = io.WriteString(w, strconv.Quote(s))
	_, _ = w.Write([]byte{0x1f})
}

func writeValue(w io.Writer, v any) {
	switch x := v.(type) {
	case nil:
		writeField(w, "\x00NULL")
	case float64:
		writeField(w, strconv.FormatFloat(x, 'g', -1, 64))
	case []any:
		_, _ = w.Write([]byte{'['})
		for _, e := range x {
			writeValue(w, e)
		}
		_, _ = w.Write([]byte{']'})
	default:
		writeField(w, fmt.Sprint(x))
	}
}

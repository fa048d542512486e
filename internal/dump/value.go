// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package dump

import "strconv"

// Value is a typed scalar. A null keeps its column type so that the
// columnar writer never has to guess.
type Value struct {
	Type  ScalarType
	Valid bool
	Int   int64
	Float float64
	Text  string
}

// Int64Value returns a non-null BIGINT value.
func Int64Value(v int64) Value { return Value{Type: TypeInt64, Valid: true, Int: v} }

// Float64Value returns a non-null DOUBLE value.
func Float64Value(v float64) Value { return Value{Type: TypeFloat64, Valid: true, Float: v} }

// TextValue returns a non-null VARCHAR value.
func TextValue(v string) Value { return Value{Type: TypeText, Valid: true, Text: v} }

// Null returns a typed null.
func Null(t ScalarType) Value { return Value{Type: t} }

// IsNull reports whether the value is a null.
func (v Value) IsNull() bool { return !v.Valid }

// String renders the value for logs and error messages.
func (v Value) String() string {
	if !v.Valid {
		return "NULL"
	}
	switch v.Type {
	case TypeInt64:
		return strconv.FormatInt(v.Int, 10)
	case TypeFloat64:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return v.Text
	}
}

// Row holds one value per table column, derived columns included.
type Row []Value

// Batch is a bounded group of rows of a single table, in parse order.
type Batch struct {
	Table *Table

	// Seq numbers the batches of one source file from zero.
	Seq int

	// FirstSeq is the parse ordinal of Rows[0] within the source file.
	// Row i has ordinal FirstSeq+i.
	FirstSeq int64

	Rows []Row
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int { return len(b.Rows) }

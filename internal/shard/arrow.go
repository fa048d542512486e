// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package shard

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/tomtom215/cohortmart/internal/dump"
)

// SeqColumn is the parse-order column appended to every shard.
const SeqColumn = "parse_seq"

const tableMetadataKey = "cohortmart.table"

// ArrowSchema returns the shard schema of a table: its columns in
// registry order followed by parse_seq.
func ArrowSchema(table *dump.Table) *arrow.Schema {
	fields := make([]arrow.Field, 0, len(table.Columns)+1)
	for _, c := range table.Columns {
		fields = append(fields, arrow.Field{
			Name:     c.Name,
			Type:     arrowType(c.Type),
			Nullable: c.Nullable,
		})
	}
	fields = append(fields, arrow.Field{Name: SeqColumn, Type: arrow.PrimitiveTypes.Int64})

	md := arrow.NewMetadata([]string{tableMetadataKey}, []string{table.Name})
	return arrow.NewSchema(fields, &md)
}

func arrowType(t dump.ScalarType) arrow.DataType {
	switch t {
	case dump.TypeInt64:
		return arrow.PrimitiveTypes.Int64
	case dump.TypeFloat64:
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.BinaryTypes.String
	}
}

// appendRow adds one row plus its parse ordinal to the record builder.
func appendRow(b *array.RecordBuilder, row dump.Row, seq int64) error {
	n := b.Schema().NumFields() - 1
	if len(row) != n {
		return fmt.Errorf("row has %d values, schema has %d columns", len(row), n)
	}

	for i, v := range row {
		switch fb := b.Field(i).(type) {
		case *array.Int64Builder:
			if v.IsNull() {
				fb.AppendNull()
			} else {
				fb.Append(v.Int)
			}
		case *array.Float64Builder:
			if v.IsNull() {
				fb.AppendNull()
			} else {
				fb.Append(v.Float)
			}
		case *array.StringBuilder:
			if v.IsNull() {
				fb.AppendNull()
			} else {
				fb.Append(v.Text)
			}
		default:
			return fmt.Errorf("unsupported builder %T for column %d", fb, i)
		}
	}

	b.Field(n).(*array.Int64Builder).Append(seq)
	return nil
}

// recordRows converts an arrow record back into rows. Sequence values are
// appended to seqs when it is non-nil.
func recordRows(table *dump.Table, rec arrow.Record, rows []dump.Row, seqs *[]int64) ([]dump.Row, error) {
	ncols := len(table.Columns)
	if int(rec.NumCols()) != ncols+1 {
		return rows, fmt.Errorf("record has %d columns, table %s expects %d", rec.NumCols(), table.Name, ncols+1)
	}

	for r := 0; r < int(rec.NumRows()); r++ {
		row := make(dump.Row, ncols)
		for i, col := range table.Columns {
			v, err := cellValue(rec.Column(i), r, col.Type)
			if err != nil {
				return rows, fmt.Errorf("column %s: %w", col.Name, err)
			}
			row[i] = v
		}
		rows = append(rows, row)

		if seqs != nil {
			seq, ok := rec.Column(ncols).(*array.Int64)
			if !ok {
				return rows, fmt.Errorf("column %s is %s", SeqColumn, rec.Column(ncols).DataType())
			}
			*seqs = append(*seqs, seq.Value(r))
		}
	}
	return rows, nil
}

func cellValue(arr arrow.Array, i int, typ dump.ScalarType) (dump.Value, error) {
	if arr.IsNull(i) {
		return dump.Null(typ), nil
	}
	switch a := arr.(type) {
	case *array.Int64:
		return dump.Int64Value(a.Value(i)), nil
	case *array.Float64:
		return dump.Float64Value(a.Value(i)), nil
	case *array.String:
		return dump.TextValue(a.Value(i)), nil
	case *array.LargeString:
		return dump.TextValue(a.Value(i)), nil
	default:
		return dump.Value{}, fmt.Errorf("unsupported arrow type %s", arr.DataType())
	}
}

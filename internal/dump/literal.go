// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package dump

import (
	"math"
	"strconv"
	"strings"
)

type tokenKind uint8

const (
	tokNull tokenKind = iota + 1
	tokNumber
	tokString
	tokInvalid
)

// token is one value as it appeared in a row, before type conversion.
type token struct {
	kind tokenKind
	text string
}

// decodeLiteral resolves backslash escapes and doubled quotes in the raw
// bytes of a quoted literal.
func decodeLiteral(raw []byte, quote byte) string {
	if !containsEscape(raw, quote) {
		return string(raw)
	}

	var sb strings.Builder
	sb.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '\\' && i+1 < len(raw):
			i++
			sb.WriteByte(unescape(raw[i]))
		case c == quote && i+1 < len(raw) && raw[i+1] == quote:
			i++
			sb.WriteByte(quote)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func containsEscape(raw []byte, quote byte) bool {
	for _, c := range raw {
		if c == '\\' || c == quote {
			return true
		}
	}
	return false
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case '0':
		return 0
	case 'b':
		return '\b'
	case 'Z':
		return 0x1a
	default:
		return c
	}
}

// convert turns a token into a value of the column type. ok is false when
// the token cannot be represented without loss.
func convert(tok token, col Column) (Value, bool) {
	switch tok.kind {
	case tokNull:
		if !col.Nullable {
			return Value{}, false
		}
		return Null(col.Type), true
	case tokInvalid:
		return Value{}, false
	}

	switch col.Type {
	case TypeInt64:
		if tok.kind != tokNumber {
			return Value{}, false
		}
		v, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return Value{}, false
		}
		return Int64Value(v), true

	case TypeFloat64:
		if tok.kind != tokNumber {
			return Value{}, false
		}
		v, err := strconv.ParseFloat(tok.text, 64)
		if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
			return Value{}, false
		}
		return Float64Value(v), true

	case TypeText:
		return TextValue(tok.text), true
	}
	return Value{}, false
}

func isNumberStart(c byte) bool {
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.'
}

func isNumberByte(c byte) bool {
	return isNumberStart(c) || c == 'e' || c == 'E'
}

func isWordByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '$'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == '\v'
}

// validNumber rejects tokens such as "1-2" or "--" that only consist of
// number bytes.
func validNumber(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	if err == nil {
		return true
	}
	if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
		// Syntactically valid but out of range; conversion rejects it.
		return true
	}
	return false
}

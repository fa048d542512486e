// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package dump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Options controls parser buffering and batching.
type Options struct {
	// BatchSize is the maximum number of rows per batch.
	// Default: 100000
	BatchSize int

	// BufferSize is the size of the read buffer in bytes.
	// Default: 256 KiB
	BufferSize int

	// MaxLiteralBytes bounds a single quoted literal. Longer literals make
	// their row malformed.
	// Default: 16 MiB
	MaxLiteralBytes int
}

// DefaultOptions returns the default parser options.
func DefaultOptions() Options {
	return Options{
		BatchSize:       100_000,
		BufferSize:      256 << 10,
		MaxLiteralBytes: 16 << 20,
	}
}

// Stats are running counters of a parser.
type Stats struct {
	// Statements counts INSERT statements addressed to the parser's table.
	Statements int64

	// SkippedStatements counts statements that were not used.
	SkippedStatements int64

	// Rows counts rows emitted in batches.
	Rows int64

	// Malformed counts rows that were dropped.
	Malformed int64

	// Bytes counts bytes consumed from the input.
	Bytes int64

	// Truncated counts inputs abandoned inside an oversized literal that
	// never closed. Rows after that point are neither emitted nor counted
	// as malformed.
	Truncated int64
}

type parseState uint8

const (
	stateScanning parseState = iota
	stateRows
	stateDone
)

var errBadStatement = errors.New("unrecognized statement shape")

// Parser turns a dump stream into batches of rows for one table.
// A Parser is not safe for concurrent use.
type Parser struct {
	table *Table
	opts  Options
	in    *byteReader
	state parseState

	// declared holds the column order of a CREATE TABLE for the table.
	declared []string

	// mapping[i] is the table column receiving the i-th value of a row,
	// or -1 when the value is ignored.
	mapping []int
	strict  bool

	stats   Stats
	seq     int64
	batches int
	batch   *Batch
	steps   int
	err     error

	toks        []token
	lit         []byte
	litOverflow bool
	word        []byte
}

// NewParser creates a parser reading r for table.
func NewParser(r io.Reader, table *Table, opts Options) *Parser {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}
	if opts.MaxLiteralBytes <= 0 {
		opts.MaxLiteralBytes = def.MaxLiteralBytes
	}
	return &Parser{
		table: table,
		opts:  opts,
		in:    newByteReader(r, opts.BufferSize),
	}
}

// Table returns the table the parser produces rows for.
func (p *Parser) Table() *Table { return p.table }

// Stats returns a snapshot of the parser counters.
func (p *Parser) Stats() Stats {
	s := p.stats
	s.Bytes = p.in.consumed()
	return s
}

// Malformed returns the number of rows dropped so far.
func (p *Parser) Malformed() int64 { return p.stats.Malformed }

// Next returns the next batch of rows. It returns io.EOF once the input is
// exhausted and every row has been delivered. Read errors are fatal and are
// returned on every subsequent call.
func (p *Parser) Next(ctx context.Context) (*Batch, error) {
	if p.err != nil {
		return nil, p.err
	}

	for p.state != stateDone {
		if p.batch != nil && len(p.batch.Rows) >= p.opts.BatchSize {
			return p.flush(), nil
		}

		p.steps++
		if p.steps&1023 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		var err error
		switch p.state {
		case stateScanning:
			err = p.scanStatement()
		case stateRows:
			err = p.stepRows()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.state = stateDone
				break
			}
			p.err = fmt.Errorf("parse %s dump at byte %d: %w", p.table.Name, p.in.consumed(), err)
			return nil, p.err
		}
	}

	if p.batch != nil && len(p.batch.Rows) > 0 {
		return p.flush(), nil
	}
	return nil, io.EOF
}

func (p *Parser) flush() *Batch {
	b := p.batch
	p.batch = nil
	return b
}

// scanStatement reads the leading keyword of the next statement.
func (p *Parser) scanStatement() error {
	c, err := p.skipSpace()
	if err != nil {
		return err
	}
	if c == ';' {
		return nil
	}
	if !isWordByte(c) {
		p.stats.SkippedStatements++
		p.in.unread(c)
		return p.skipStatement()
	}

	switch strings.ToUpper(p.readWord(c)) {
	case "INSERT", "REPLACE":
		return p.beginInsert()
	case "CREATE":
		return p.readCreate()
	default:
		p.stats.SkippedStatements++
		return p.skipStatement()
	}
}

func (p *Parser) beginInsert() error {
	word, c, err := p.nextWord()
	for err == nil && isInsertModifier(word) {
		word, c, err = p.nextWord()
	}
	if err != nil {
		return err
	}

	var name string
	switch {
	case strings.EqualFold(word, "INTO"):
		name, err = p.readIdent()
	case word != "":
		name = word
	case c == '`' || c == '"':
		name, err = p.readQuotedIdent(c)
	default:
		p.in.unread(c)
	}
	if err != nil {
		return err
	}
	if name == "" || !p.table.Matches(name) {
		return p.skipUnused()
	}

	c, err = p.skipSpace()
	if err != nil {
		return err
	}
	var cols []string
	if c == '(' {
		cols, err = p.readColumnList()
		if errors.Is(err, errBadStatement) {
			return p.skipUnused()
		}
		if err != nil {
			return err
		}
		if c, err = p.skipSpace(); err != nil {
			return err
		}
	}

	if !isWordByte(c) {
		p.in.unread(c)
		return p.skipUnused()
	}
	kw := p.readWord(c)
	if !strings.EqualFold(kw, "VALUES") && !strings.EqualFold(kw, "VALUE") {
		return p.skipUnused()
	}
	if !p.resolveMapping(cols) {
		return p.skipUnused()
	}

	p.stats.Statements++
	p.state = stateRows
	return nil
}

func isInsertModifier(w string) bool {
	switch strings.ToUpper(w) {
	case "LOW_PRIORITY", "DELAYED", "HIGH_PRIORITY", "IGNORE":
		return true
	}
	return false
}

// resolveMapping builds the value-to-column mapping for an INSERT. It
// reports false when a required column cannot be filled.
func (p *Parser) resolveMapping(cols []string) bool {
	names := cols
	if names == nil {
		names = p.declared
	}

	if names == nil {
		p.mapping = p.mapping[:0]
		for i, c := range p.table.Columns {
			if !c.Derived {
				p.mapping = append(p.mapping, i)
			}
		}
		p.strict = false
		return true
	}

	mapping := make([]int, len(names))
	seen := make([]bool, len(p.table.Columns))
	for i, n := range names {
		idx := p.table.ColumnIndex(n)
		if idx >= 0 && p.table.Columns[idx].Derived {
			idx = -1
		}
		mapping[i] = idx
		if idx >= 0 {
			seen[idx] = true
		}
	}
	for i, c := range p.table.Columns {
		if !c.Derived && !c.Nullable && !seen[i] {
			return false
		}
	}
	p.mapping = mapping
	p.strict = true
	return true
}

// readCreate captures the column order of CREATE TABLE for the parser's
// table. Other CREATE statements are skipped.
func (p *Parser) readCreate() error {
	word, c, err := p.nextWord()
	if err != nil {
		return err
	}
	if strings.EqualFold(word, "TEMPORARY") {
		if word, c, err = p.nextWord(); err != nil {
			return err
		}
	}
	if !strings.EqualFold(word, "TABLE") {
		if word == "" {
			p.in.unread(c)
		}
		return p.skipUnused()
	}

	name, err := p.readIdent()
	if err != nil {
		return err
	}
	if strings.EqualFold(name, "IF") {
		// IF NOT EXISTS
		if _, _, err = p.nextWord(); err != nil {
			return err
		}
		if _, _, err = p.nextWord(); err != nil {
			return err
		}
		if name, err = p.readIdent(); err != nil {
			return err
		}
	}
	if name == "" || !p.table.Matches(name) {
		return p.skipUnused()
	}

	c, err = p.skipSpace()
	if err != nil {
		return err
	}
	if c != '(' {
		p.in.unread(c)
		return p.skipUnused()
	}

	var cols []string
	for {
		name, err := p.readIdent()
		if err != nil {
			return err
		}
		if name != "" && !isConstraintKeyword(name) {
			cols = append(cols, name)
		}
		delim, err := p.skipDefinition()
		if err != nil {
			return err
		}
		if delim == ')' {
			break
		}
	}
	p.declared = cols
	return p.skipStatement()
}

func isConstraintKeyword(w string) bool {
	switch strings.ToUpper(w) {
	case "PRIMARY", "KEY", "UNIQUE", "INDEX", "CONSTRAINT", "FULLTEXT", "SPATIAL", "FOREIGN", "CHECK":
		return true
	}
	return false
}

// skipDefinition consumes the rest of a column or key definition and
// returns the delimiter that ended it: ',' or ')'.
func (p *Parser) skipDefinition() (byte, error) {
	depth := 0
	for {
		c, err := p.in.next()
		if err != nil {
			return 0, err
		}
		switch c {
		case '\'', '"', '`':
			if err := p.skipLiteral(c); err != nil {
				return 0, err
			}
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return c, nil
			}
			depth--
		case ',':
			if depth == 0 {
				return c, nil
			}
		}
	}
}

func (p *Parser) readColumnList() ([]string, error) {
	cols := []string{}
	for {
		name, err := p.readIdent()
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, errBadStatement
		}
		cols = append(cols, name)

		c, err := p.skipSpace()
		if err != nil {
			return nil, err
		}
		switch c {
		case ',':
		case ')':
			return cols, nil
		default:
			p.in.unread(c)
			return nil, errBadStatement
		}
	}
}

// stepRows consumes one element of a VALUES list.
func (p *Parser) stepRows() error {
	c, err := p.skipSpace()
	if err != nil {
		return err
	}
	switch c {
	case '(':
		return p.readRow()
	case ',':
		return nil
	case ';':
		p.state = stateScanning
		return nil
	default:
		p.malformed()
		return p.skipToRowEnd(c)
	}
}

// readRow reads one parenthesized row; the opening parenthesis has been
// consumed.
func (p *Parser) readRow() error {
	p.toks = p.toks[:0]
	for {
		c, err := p.skipSpace()
		if err != nil {
			p.malformed()
			return err
		}
		if c == ')' && len(p.toks) == 0 {
			p.malformed()
			return nil
		}

		var tok token
		switch {
		case c == '\'' || c == '"':
			closed, err := p.readLiteral(c)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			if !closed {
				return p.recoverLiteral(nil)
			}
			if p.litOverflow {
				tok = token{kind: tokInvalid}
			} else {
				tok = token{kind: tokString, text: decodeLiteral(p.lit, c)}
			}
			p.toks = append(p.toks, tok)

			after, err := p.skipSpace()
			if err != nil {
				p.malformed()
				return err
			}
			switch after {
			case ',':
				continue
			case ')':
				p.emit()
				return nil
			default:
				return p.recoverLiteral([]byte{c, after})
			}

		case isNumberStart(c):
			text := p.readNumber(c)
			tok = token{kind: tokNumber, text: text}
			if !validNumber(text) {
				tok.kind = tokInvalid
			}

		case isWordByte(c):
			if strings.EqualFold(p.readWord(c), "NULL") {
				tok = token{kind: tokNull}
			} else {
				tok = token{kind: tokInvalid}
			}

		default:
			p.malformed()
			return p.skipToRowEnd(c)
		}

		p.toks = append(p.toks, tok)

		after, err := p.skipSpace()
		if err != nil {
			p.malformed()
			return err
		}
		switch after {
		case ',':
		case ')':
			p.emit()
			return nil
		default:
			p.malformed()
			return p.skipToRowEnd(after)
		}
	}
}

// emit converts the collected tokens into a row and appends it to the
// current batch, or counts the row as malformed.
func (p *Parser) emit() {
	if len(p.toks) < len(p.mapping) || (p.strict && len(p.toks) != len(p.mapping)) {
		p.malformed()
		return
	}

	cols := p.table.Columns
	row := make(Row, len(cols))
	for i, c := range cols {
		row[i] = Null(c.Type)
	}
	for i, idx := range p.mapping {
		if idx < 0 {
			continue
		}
		v, ok := convert(p.toks[i], cols[idx])
		if !ok {
			p.malformed()
			return
		}
		row[idx] = v
	}
	if p.table.derive != nil {
		p.table.derive(p.table, row)
	}

	if p.batch == nil {
		capacity := p.opts.BatchSize
		if capacity > 4096 {
			capacity = 4096
		}
		p.batch = &Batch{
			Table:    p.table,
			Seq:      p.batches,
			FirstSeq: p.seq,
			Rows:     make([]Row, 0, capacity),
		}
		p.batches++
	}
	p.batch.Rows = append(p.batch.Rows, row)
	p.stats.Rows++
	p.seq++
}

func (p *Parser) malformed() {
	p.stats.Malformed++
}

// recoverLiteral handles a literal whose closing quote is missing: the
// literal either ran to the end of input, or the quote that closed it was
// followed by something other than a value separator. The broken row ends
// at the first row boundary inside the literal bytes and everything after
// that boundary is parsed again. consumed holds the bytes read after the
// literal, if any.
func (p *Parser) recoverLiteral(consumed []byte) error {
	p.malformed()

	at := p.literalBoundary()
	if at < 0 {
		if consumed == nil {
			if p.litOverflow {
				p.stats.Truncated++
			}
			return io.EOF
		}
		return p.skipBrokenRow(consumed[len(consumed)-1])
	}

	tail := make([]byte, 0, len(p.lit)-at+len(consumed))
	tail = append(tail, p.lit[at:]...)
	tail = append(tail, consumed...)
	p.in.pushBack(tail)
	return nil
}

// literalBoundary returns rowBoundary of the buffered literal, or -1 when
// the literal overflowed and its bytes are incomplete.
func (p *Parser) literalBoundary() int {
	if p.litOverflow {
		return -1
	}
	return rowBoundary(p.lit)
}

// skipBrokenRow discards the rest of a row whose literal was closed by a
// stray quote, as in 'ab'c'. A quote opened after that point may be the
// real end of the broken literal, so its bytes are searched for a row
// boundary the same way and everything past the boundary is parsed again.
func (p *Parser) skipBrokenRow(c byte) error {
	depth := 0
	for {
		switch c {
		case '\'', '"':
			closed, err := p.readLiteral(c)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			if at := p.literalBoundary(); at >= 0 {
				tail := make([]byte, 0, len(p.lit)-at+1)
				tail = append(tail, p.lit[at:]...)
				if closed {
					tail = append(tail, c)
				}
				p.in.pushBack(tail)
				return nil
			}
			if !closed {
				if p.litOverflow {
					p.stats.Truncated++
				}
				return io.EOF
			}
		case '`':
			if err := p.skipLiteral(c); err != nil {
				return err
			}
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return nil
			}
			depth--
		case ';':
			if depth == 0 {
				p.state = stateScanning
				return nil
			}
		}

		var err error
		if c, err = p.in.next(); err != nil {
			return err
		}
	}
}

// rowBoundary returns the index just past the ')' of the first "),(" or
// ");" sequence in b, or -1.
func rowBoundary(b []byte) int {
	for i := 0; i < len(b); i++ {
		if b[i] != ')' {
			continue
		}
		j := i + 1
		for j < len(b) && isSpace(b[j]) {
			j++
		}
		if j >= len(b) {
			continue
		}
		if b[j] == ';' {
			return i + 1
		}
		if b[j] != ',' {
			continue
		}
		j++
		for j < len(b) && isSpace(b[j]) {
			j++
		}
		if j < len(b) && b[j] == '(' {
			return i + 1
		}
	}
	return -1
}

// skipToRowEnd discards input up to the ')' closing the current row. c is
// the byte that made the row malformed. A ';' at row level ends the
// statement as well.
func (p *Parser) skipToRowEnd(c byte) error {
	depth := 0
	for {
		switch c {
		case '\'', '"', '`':
			if err := p.skipLiteral(c); err != nil {
				return err
			}
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return nil
			}
			depth--
		case ';':
			if depth == 0 {
				p.state = stateScanning
				return nil
			}
		}

		var err error
		if c, err = p.in.next(); err != nil {
			return err
		}
	}
}

// skipUnused skips a statement that does not contribute rows.
func (p *Parser) skipUnused() error {
	p.stats.SkippedStatements++
	return p.skipStatement()
}

// skipStatement discards input up to and including the next ';' outside
// of quotes and comments.
func (p *Parser) skipStatement() error {
	p.state = stateScanning
	for {
		c, err := p.skipSpace()
		if err != nil {
			return err
		}
		switch c {
		case ';':
			return nil
		case '\'', '"', '`':
			if err := p.skipLiteral(c); err != nil {
				return err
			}
		}
	}
}

// skipSpace discards whitespace and comments and returns the next byte.
func (p *Parser) skipSpace() (byte, error) {
	for {
		c, err := p.in.next()
		if err != nil {
			return 0, err
		}
		switch {
		case isSpace(c):
			continue
		case c == '#':
			if err := p.skipLine(); err != nil {
				return 0, err
			}
			continue
		case c == '-':
			n, err := p.in.peek()
			if err == nil && n == '-' {
				if err := p.skipLine(); err != nil {
					return 0, err
				}
				continue
			}
			return c, nil
		case c == '/':
			n, err := p.in.peek()
			if err == nil && n == '*' {
				_, _ = p.in.next()
				if err := p.skipBlockComment(); err != nil {
					return 0, err
				}
				continue
			}
			return c, nil
		default:
			return c, nil
		}
	}
}

func (p *Parser) skipLine() error {
	for {
		c, err := p.in.next()
		if err != nil {
			return err
		}
		if c == '\n' {
			return nil
		}
	}
}

func (p *Parser) skipBlockComment() error {
	prev := byte(0)
	for {
		c, err := p.in.next()
		if err != nil {
			return err
		}
		if prev == '*' && c == '/' {
			return nil
		}
		prev = c
	}
}

// readLiteral reads a quoted literal, the opening quote already consumed,
// into p.lit. Escapes are kept verbatim. closed is false when the input
// ends before the closing quote.
func (p *Parser) readLiteral(quote byte) (closed bool, err error) {
	p.lit = p.lit[:0]
	p.litOverflow = false
	for {
		c, err := p.in.next()
		if err != nil {
			return false, err
		}
		switch c {
		case '\\':
			e, err := p.in.next()
			if err != nil {
				p.appendLit(c)
				return false, err
			}
			p.appendLit(c)
			p.appendLit(e)
		case quote:
			n, err := p.in.peek()
			if err == nil && n == quote {
				_, _ = p.in.next()
				p.appendLit(c)
				p.appendLit(c)
				continue
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return false, err
			}
			return true, nil
		default:
			p.appendLit(c)
		}
	}
}

func (p *Parser) appendLit(c byte) {
	if len(p.lit) >= p.opts.MaxLiteralBytes {
		p.litOverflow = true
		return
	}
	p.lit = append(p.lit, c)
}

// skipLiteral discards a quoted literal without buffering it.
func (p *Parser) skipLiteral(quote byte) error {
	for {
		c, err := p.in.next()
		if err != nil {
			return err
		}
		switch c {
		case '\\':
			if quote == '`' {
				continue
			}
			if _, err := p.in.next(); err != nil {
				return err
			}
		case quote:
			n, err := p.in.peek()
			if err == nil && n == quote {
				_, _ = p.in.next()
				continue
			}
			return nil
		}
	}
}

func (p *Parser) readWord(first byte) string {
	p.word = append(p.word[:0], first)
	for {
		c, err := p.in.next()
		if err != nil {
			break
		}
		if !isWordByte(c) {
			p.in.unread(c)
			break
		}
		p.word = append(p.word, c)
	}
	return string(p.word)
}

func (p *Parser) readNumber(first byte) string {
	p.word = append(p.word[:0], first)
	for {
		c, err := p.in.next()
		if err != nil {
			break
		}
		if !isNumberByte(c) {
			p.in.unread(c)
			break
		}
		p.word = append(p.word, c)
	}
	return string(p.word)
}

// nextWord returns the next bare word. When the next token is not a word,
// word is empty and c holds the consumed byte.
func (p *Parser) nextWord() (word string, c byte, err error) {
	c, err = p.skipSpace()
	if err != nil {
		return "", 0, err
	}
	if !isWordByte(c) {
		return "", c, nil
	}
	return p.readWord(c), c, nil
}

// readIdent reads a bare, back-quoted or double-quoted identifier. For a
// qualified name the last part is returned. An empty name means the next
// token is not an identifier; it is left unread.
func (p *Parser) readIdent() (string, error) {
	c, err := p.skipSpace()
	if err != nil {
		return "", err
	}

	var name string
	switch {
	case c == '`' || c == '"':
		if name, err = p.readQuotedIdent(c); err != nil {
			return "", err
		}
	case isWordByte(c):
		name = p.readWord(c)
	default:
		p.in.unread(c)
		return "", nil
	}

	if n, err := p.in.peek(); err == nil && n == '.' {
		_, _ = p.in.next()
		return p.readIdent()
	}
	return name, nil
}

func (p *Parser) readQuotedIdent(quote byte) (string, error) {
	var sb strings.Builder
	for {
		c, err := p.in.next()
		if err != nil {
			return "", err
		}
		if c == quote {
			n, err := p.in.peek()
			if err == nil && n == quote {
				_, _ = p.in.next()
				sb.WriteByte(c)
				continue
			}
			return sb.String(), nil
		}
		sb.WriteByte(c)
	}
}

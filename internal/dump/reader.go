// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package dump

import (
	"bufio"
	"io"
)

// byteReader is a buffered byte source with an unbounded push-back stack.
// Pushed-back bytes are returned before the underlying stream resumes.
type byteReader struct {
	br   *bufio.Reader
	back []byte // read from the end
	n    int64
	err  error
}

func newByteReader(r io.Reader, size int) *byteReader {
	return &byteReader{br: bufio.NewReaderSize(r, size)}
}

func (r *byteReader) next() (byte, error) {
	if n := len(r.back); n > 0 {
		c := r.back[n-1]
		r.back = r.back[:n-1]
		return c, nil
	}
	if r.err != nil {
		return 0, r.err
	}
	c, err := r.br.ReadByte()
	if err != nil {
		// bufio clears read errors after reporting them once.
		r.err = err
		return 0, err
	}
	r.n++
	return c, nil
}

func (r *byteReader) peek() (byte, error) {
	c, err := r.next()
	if err != nil {
		return 0, err
	}
	r.unread(c)
	return c, nil
}

func (r *byteReader) unread(c byte) {
	r.back = append(r.back, c)
}

// pushBack makes b the next bytes returned, in order.
func (r *byteReader) pushBack(b []byte) {
	for i := len(b) - 1; i >= 0; i-- {
		r.back = append(r.back, b[i])
	}
}

// consumed returns the number of bytes read from the underlying stream.
func (r *byteReader) consumed() int64 {
	return r.n
}

// gtfsort: a high-performance tool for sorting GTF/GFF3 files.
// Copyright (c) 2024 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/gtfsort/blob/master/LICENSE.txt>.

package output

import (
	"io"

	"github.com/exascience/gtfsort/internal"
)

// DefaultChunkSize is the size at which a ChunkWriter hands its buffer
// to the sink.
const DefaultChunkSize = 1 << 16

/*
A ChunkWriter collects lines in a pooled buffer and passes them on to a
sink function in chunks of roughly the configured size. Each chunk ends
at a line boundary as long as lines are written with WriteLine.

Flush must be called after the last write.
*/
type ChunkWriter struct {
	sink func([]byte) (int, error)
	buf  []byte
	size int
	err  error
}

// NewChunkWriter returns a ChunkWriter for the given sink. A size <= 0
// selects DefaultChunkSize.
func NewChunkWriter(sink func([]byte) (int, error), size int) *ChunkWriter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &ChunkWriter{
		sink: sink,
		buf:  internal.ReserveByteBuffer(),
		size: size,
	}
}

func (w *ChunkWriter) emit() error {
	if w.err != nil {
		return w.err
	}
	if len(w.buf) == 0 {
		return nil
	}
	n, err := w.sink(w.buf)
	if err == nil && n < len(w.buf) {
		err = io.ErrShortWrite
	}
	w.buf = w.buf[:0]
	w.err = err
	return err
}

// Write appends p to the current chunk.
func (w *ChunkWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.buf = append(w.buf, p...)
	if len(w.buf) >= w.size {
		if err := w.emit(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// WriteLine appends line and a newline to the current chunk.
func (w *ChunkWriter) WriteLine(line string) error {
	if w.err != nil {
		return w.err
	}
	w.buf = append(w.buf, line...)
	w.buf = append(w.buf, '\n')
	if len(w.buf) >= w.size {
		return w.emit()
	}
	return nil
}

// Flush passes any buffered bytes to the sink and returns the buffer
// to the pool. The writer must not be used after Flush.
func (w *ChunkWriter) Flush() error {
	err := w.emit()
	internal.ReleaseByteBuffer(w.buf)
	w.buf = nil
	if w.err == nil {
		w.err = errFlushed
	}
	return err
}

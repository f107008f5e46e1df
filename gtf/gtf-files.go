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

package gtf

import (
	"io"
	"strings"

	"github.com/exascience/pargo/parallel"
	"github.com/exascience/pargo/pipeline"
)

// Records holds the successfully parsed lines of an annotation file,
// grouped by chromosome. Within a chromosome, records are in file order.
type Records struct {
	// Maps chromosome names onto records.
	Chroms map[string][]Record
	// Comment lines, in file order.
	Comments []string
	// Number of parsed records.
	Count int
	// Number of lines that could not be parsed.
	Dropped int
}

// NewRecords allocates and initializes an empty Records value.
func NewRecords() *Records {
	return &Records{Chroms: make(map[string][]Record)}
}

func (records *Records) parseLine(line string, sep Separator) {
	switch {
	case line == "":
	case line[0] == '#':
		records.Comments = append(records.Comments, line)
	default:
		record, err := ParseRecord(line, sep)
		if err != nil {
			records.Dropped++
			return
		}
		records.Chroms[record.Chrom] = append(records.Chroms[record.Chrom], record)
		records.Count++
	}
}

// Merge appends the contents of other to records, and returns records.
func (records *Records) Merge(other *Records) *Records {
	for chrom, recs := range other.Chroms {
		records.Chroms[chrom] = append(records.Chroms[chrom], recs...)
	}
	records.Comments = append(records.Comments, other.Comments...)
	records.Count += other.Count
	records.Dropped += other.Dropped
	return records
}

const chunksPerThread = 4

// splitChunks partitions text into at most n chunks that each end
// after a newline, except possibly the last one.
func splitChunks(text string, n int) (chunks []string) {
	if n < 1 {
		n = 1
	}
	size := len(text)/n + 1
	for len(text) > 0 {
		if len(text) <= size {
			return append(chunks, text)
		}
		end := strings.IndexByte(text[size:], '\n')
		if end < 0 {
			return append(chunks, text)
		}
		end += size + 1
		chunks = append(chunks, text[:end])
		text = text[end:]
	}
	return chunks
}

/*
ParseText parses the lines of an in-memory GTF/GFF3 file in parallel.

The text is statically partitioned into newline-aligned chunks, a
small multiple of the given number of threads. Each worker parses its
chunks into a local map, and the local maps are merged pairwise in
chunk order, so that the records of each chromosome remain in file
order. Comment lines are collected separately. Lines that cannot be
parsed are dropped and counted.

The returned records share memory with text.
*/
func ParseText(text string, sep Separator, threads int) *Records {
	chunks := splitChunks(text, threads*chunksPerThread)
	if len(chunks) == 0 {
		return NewRecords()
	}
	return parallel.RangeReduce(0, len(chunks), 0, func(low, high int) interface{} {
		records := NewRecords()
		var sc StringScanner
		for _, chunk := range chunks[low:high] {
			sc.Reset(chunk)
			for sc.Len() > 0 {
				records.parseLine(sc.ReadLine(), sep)
			}
		}
		return records
	}, func(x, y interface{}) interface{} {
		return x.(*Records).Merge(y.(*Records))
	}).(*Records)
}

const initialLineBufferSize = 64 * 1024

// MaxLineSize is the longest line ParseReader accepts.
const MaxLineSize = 256 * 1024 * 1024

// ParseReader parses a GTF/GFF3 stream with a pargo pipeline. The
// result is the same as that of ParseText on the full contents of the
// stream, but each line is a separate copy. Lines longer than
// MaxLineSize fail with bufio.ErrTooLong.
func ParseReader(r io.Reader, sep Separator) (*Records, error) {
	scanner := pipeline.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialLineBufferSize), MaxLineSize)
	var p pipeline.Pipeline
	p.Source(scanner)
	p.Add(pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
		records := NewRecords()
		for _, line := range data.([]string) {
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			records.parseLine(line, sep)
		}
		return records
	})))
	result := NewRecords()
	p.Add(pipeline.Ord(pipeline.Receive(func(_ int, data interface{}) interface{} {
		result.Merge(data.(*Records))
		return data
	})))
	p.Run()
	if err := p.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

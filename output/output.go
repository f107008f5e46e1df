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

/*
Package output writes sorted annotation files, either through a memory
map with one region per chromosome filled in parallel, or sequentially.
*/
package output

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/exascience/pargo/parallel"
	"github.com/klauspost/pgzip"

	"github.com/exascience/gtfsort/gtf"
	"github.com/exascience/gtfsort/internal"
	"github.com/exascience/gtfsort/layers"
	"github.com/exascience/gtfsort/mmap"
)

var errFlushed = errors.New("write to flushed chunk writer")

// mapMut maps output files. Tests replace it to simulate mapping failures.
var mapMut = mmap.MapMut

// An OpError records a failed I/O operation on an output file.
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (err *OpError) Error() string {
	return fmt.Sprintf("%v %v: %v", err.Op, err.Path, err.Err)
}

func (err *OpError) Unwrap() error {
	return err.Err
}

// A MappingError reports that an output file could not be sized or
// memory mapped. Output can still be written sequentially.
type MappingError struct {
	Path string
	Err  error
}

func (err *MappingError) Error() string {
	return fmt.Sprintf("cannot memory map %v: %v", err.Path, err.Err)
}

func (err *MappingError) Unwrap() error {
	return err.Err
}

/*
A Plan assigns every byte of an output file to exactly one region.
Region 0 holds the comment header, region i > 0 the chromosome
Chroms[i-1].
*/
type Plan struct {
	Index    *layers.Index
	Comments []string
	Chroms   []string
	Sizes    []int
	Total    int
}

// NewPlan computes the region sizes of the given index in parallel.
func NewPlan(index *layers.Index, comments []string) (*Plan, error) {
	chroms := index.Chromosomes()
	plan := &Plan{
		Index:    index,
		Comments: comments,
		Chroms:   chroms,
		Sizes:    make([]int, len(chroms)+1),
	}
	for _, comment := range comments {
		plan.Sizes[0] += len(comment) + 1
	}
	if len(chroms) > 0 {
		errs := make([]error, len(chroms))
		parallel.Range(0, len(chroms), len(chroms), func(low, high int) {
			for i := low; i < high; i++ {
				plan.Sizes[i+1], errs[i] = index.Get(chroms[i]).Size()
			}
		})
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
	}
	for _, size := range plan.Sizes {
		plan.Total += size
	}
	return plan, nil
}

func (plan *Plan) walk(region int, emit func(string) error) error {
	if region == 0 {
		for _, comment := range plan.Comments {
			if err := emit(comment); err != nil {
				return err
			}
		}
		return nil
	}
	return plan.Index.Get(plan.Chroms[region-1]).Walk(emit)
}

func fill(plan *Plan, data []byte) {
	offsets := make([]int, len(plan.Sizes)+1)
	for i, size := range plan.Sizes {
		offsets[i+1] = offsets[i] + size
	}
	if offsets[len(plan.Sizes)] != len(data) {
		log.Panicf("output plan covers %v bytes, but the mapping has %v", offsets[len(plan.Sizes)], len(data))
	}
	parallel.Range(0, len(plan.Sizes), len(plan.Sizes), func(low, high int) {
		for r := low; r < high; r++ {
			region := data[offsets[r]:offsets[r+1]]
			cursor := 0
			if err := plan.walk(r, func(line string) error {
				cursor += copy(region[cursor:], line)
				region[cursor] = '\n'
				cursor++
				return nil
			}); err != nil {
				log.Panic(err)
			}
			if cursor != len(region) {
				log.Panicf("region %v: wrote %v bytes, planned %v", r, cursor, len(region))
			}
		}
	})
}

/*
WriteMapped creates or truncates the file at path, sizes it to the
plan's total, and fills its regions in parallel through a shared memory
map.
*/
func WriteMapped(path string, plan *Plan) (err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return &OpError{Op: "creating output file", Path: path, Err: err}
	}
	defer func() {
		if nerr := f.Close(); err == nil && nerr != nil {
			err = &OpError{Op: "closing output file", Path: path, Err: nerr}
		}
	}()
	if plan.Total == 0 {
		return nil
	}
	if err := f.Truncate(int64(plan.Total)); err != nil {
		return &MappingError{Path: path, Err: err}
	}
	m, err := mapMut(f, plan.Total)
	if err != nil {
		return &MappingError{Path: path, Err: err}
	}
	m.Advise(mmap.Random)
	fill(plan, m.Bytes())
	if err := m.Close(); err != nil {
		return &OpError{Op: "syncing memory map", Path: path, Err: err}
	}
	return nil
}

// WriteSequential writes the comments and all chromosomes of index to w,
// in natural chromosome order.
func WriteSequential(w io.Writer, index *layers.Index, comments []string) error {
	cw := NewChunkWriter(w.Write, 0)
	for _, comment := range comments {
		if err := cw.WriteLine(comment); err != nil {
			return err
		}
	}
	for _, chrom := range index.Chromosomes() {
		if err := index.Get(chrom).Walk(cw.WriteLine); err != nil {
			return err
		}
	}
	return cw.Flush()
}

func writeFile(path string, index *layers.Index, comments []string, compress bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return &OpError{Op: "creating output file", Path: path, Err: err}
	}
	defer func() {
		if nerr := f.Close(); err == nil && nerr != nil {
			err = &OpError{Op: "closing output file", Path: path, Err: nerr}
		}
	}()
	var w io.Writer = f
	var gz *pgzip.Writer
	if compress {
		gz = pgzip.NewWriter(f)
		w = gz
	}
	if err := WriteSequential(w, index, comments); err != nil {
		if isIndexError(err) {
			return err
		}
		return &OpError{Op: "writing output file", Path: path, Err: err}
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return &OpError{Op: "compressing output file", Path: path, Err: err}
		}
	}
	return nil
}

func isIndexError(err error) bool {
	var dangling *layers.DanglingGeneError
	var empty *layers.EmptyTranscriptError
	return errors.As(err, &dangling) || errors.As(err, &empty)
}

func isGzip(path string) bool {
	return gtf.CompressionExt(path) == ".gz"
}

/*
Write writes the sorted index to the file at path, and reports whether
the file was written through a memory map. Unless disableMmap is set,
or the file name ends in .gz, a memory-mapped write is attempted first;
if the file cannot be mapped, Write falls back to a sequential write.
*/
func Write(path string, index *layers.Index, comments []string, disableMmap bool) (mapped bool, err error) {
	if compressed := isGzip(path); disableMmap || compressed {
		return false, writeFile(path, index, comments, compressed)
	}
	plan, err := NewPlan(index, comments)
	if err != nil {
		return false, err
	}
	err = WriteMapped(path, plan)
	if err == nil {
		return true, nil
	}
	var mappingErr *MappingError
	if !errors.As(err, &mappingErr) {
		return false, err
	}
	internal.Warnf("%v; writing sequentially instead", mappingErr)
	return false, writeFile(path, index, comments, false)
}

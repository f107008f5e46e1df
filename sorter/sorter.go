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
Package sorter sorts GTF and GFF3 annotation files hierarchically:
by chromosome in natural order, then by gene start position, then
transcript by transcript, with the features of each transcript in
natural order of their exon numbers.

A job runs in three timed phases. Parsing splits the input into typed
records grouped by chromosome, indexing builds the layers of every
chromosome in parallel, and writing emits the result, through a memory
map when possible.

Each job sets runtime.GOMAXPROCS to its thread count for its duration,
so jobs should not run concurrently with other work that depends on
that setting.
*/
package sorter

import (
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"runtime"
	"unsafe"

	"github.com/google/uuid"
	"github.com/shenwei356/xopen"

	"github.com/exascience/gtfsort/gtf"
	"github.com/exascience/gtfsort/internal"
	"github.com/exascience/gtfsort/layers"
	"github.com/exascience/gtfsort/mmap"
	"github.com/exascience/gtfsort/output"
)

// JobResult describes a completed sort job. Timings are NaN for phases
// that did not run, memory figures are NaN where the platform cannot
// report them.
type JobResult struct {
	ID uuid.UUID

	Input   string
	Output  string
	Threads int

	InputMapped  bool
	OutputMapped bool

	ParsingSecs  float64
	IndexingSecs float64
	WritingSecs  float64

	StartMemMB float64
	EndMemMB   float64

	Chromosomes int
	Records     int
	Dropped     int
	Replaced    int
	Orphans     int
}

func (result *JobResult) String() string {
	return fmt.Sprintf(
		"job %v: %v -> %v, %v threads, %v records on %v chromosomes, %v dropped, %v replaced, %v orphans, parsing %.3fs, indexing %.3fs, writing %.3fs, memory %.2f -> %.2f MB",
		result.ID, result.Input, result.Output, result.Threads,
		result.Records, result.Chromosomes, result.Dropped, result.Replaced, result.Orphans,
		result.ParsingSecs, result.IndexingSecs, result.WritingSecs,
		result.StartMemMB, result.EndMemMB,
	)
}

// Sink adapts a function that consumes chunks of sorted output to an
// io.Writer. Each chunk ends at a line boundary.
type Sink func(p []byte) (n int, err error)

func (sink Sink) Write(p []byte) (int, error) {
	return sink(p)
}

type job struct {
	result  *JobResult
	opts    *options
	records *gtf.Records
	index   *layers.Index
}

func newJob(input, output string, threads int, opts []Option) *job {
	return &job{
		result: &JobResult{
			ID:           uuid.New(),
			Input:        input,
			Output:       output,
			Threads:      threads,
			ParsingSecs:  math.NaN(),
			IndexingSecs: math.NaN(),
			WritingSecs:  math.NaN(),
			StartMemMB:   math.NaN(),
			EndMemMB:     math.NaN(),
		},
		opts: newOptions(opts),
	}
}

// start sets the thread count, and returns a function that restores it.
func (j *job) start() (restore func()) {
	previous := runtime.GOMAXPROCS(j.result.Threads)
	j.result.StartMemMB = internal.PeakMemoryMB()
	log.Printf("Job %v: sorting %v using %v threads", j.result.ID, j.result.Input, j.result.Threads)
	return func() {
		runtime.GOMAXPROCS(previous)
	}
}

func (j *job) checkMemory(inputSize int64) {
	total := internal.SystemMemory()
	if total == 0 {
		return
	}
	log.Printf("System memory: %.2f MB", float64(total)/(1024*1024))
	if uint64(inputSize) > total/2 {
		internal.Warnf("input file is %v bytes, more than half of the system memory", inputSize)
	}
}

func (j *job) parse(f func() (*gtf.Records, error)) error {
	secs, err := internal.Timed("Parsing input", func() (err error) {
		j.records, err = f()
		return err
	})
	j.result.ParsingSecs = secs
	if err != nil {
		return err
	}
	j.result.Records = j.records.Count
	j.result.Dropped = j.records.Dropped
	if j.records.Dropped > 0 {
		log.Printf("Discarded %v lines that could not be parsed", j.records.Dropped)
	}
	return nil
}

func (j *job) build() {
	j.result.IndexingSecs, _ = internal.Timed("Building index", func() error {
		j.index = layers.BuildIndex(j.records, j.opts.policy)
		return nil
	})
	j.result.Chromosomes = len(j.records.Chroms)
	j.result.Replaced, j.result.Orphans = j.index.Stats()
	if j.result.Replaced > 0 {
		internal.Warnf("%v duplicate lines were replaced by later lines with the same key", j.result.Replaced)
	}
	if j.result.Orphans > 0 {
		internal.Warnf("%v transcripts have no gene line and are not written", j.result.Orphans)
	}
}

func (j *job) comments() []string {
	if j.opts.dropComments {
		return nil
	}
	return j.records.Comments
}

func (j *job) write(f func() error) error {
	secs, err := internal.Timed("Writing output", f)
	j.result.WritingSecs = secs
	if err != nil {
		return outputError(err)
	}
	return nil
}

func (j *job) finish() *JobResult {
	j.result.EndMemMB = internal.PeakMemoryMB()
	log.Println(j.result)
	return j.result
}

func validateThreads(threads int) error {
	if threads < 1 {
		return newError(InvalidThreads, fmt.Sprint(threads))
	}
	return nil
}

func validatePaths(inputPath, outputPath string) (gtf.Separator, error) {
	if inputPath == "" {
		return 0, newError(InvalidInput, "missing input file")
	}
	sep, err := gtf.SeparatorFor(inputPath)
	if err != nil {
		return 0, &Error{Kind: InvalidInput, Msg: inputPath + ": please specify a GTF or GFF3 file", Err: err}
	}
	if outputPath == "" {
		return 0, newError(InvalidOutput, "missing output file")
	}
	if _, err := gtf.SeparatorFor(outputPath); err != nil {
		return 0, &Error{Kind: InvalidOutput, Msg: outputPath + ": please specify a GTF or GFF3 file", Err: err}
	}
	if ext := gtf.CompressionExt(outputPath); ext != "" && ext != ".gz" {
		return 0, newError(InvalidOutput, outputPath+": only gzip compression is supported for output")
	}
	info, err := os.Stat(inputPath)
	switch {
	case err != nil:
		return 0, &Error{Kind: InvalidInput, Err: err}
	case info.IsDir():
		return 0, newError(InvalidInput, inputPath+" is a directory")
	case info.Size() == 0:
		return 0, newError(InvalidInput, inputPath+" is empty")
	}
	return sep, nil
}

// mapInput maps input files. Tests replace it to simulate mapping failures.
var mapInput = mmap.Map

// sameFile reports whether outputPath names the already opened input.
func sameFile(input os.FileInfo, outputPath string) bool {
	output, err := os.Stat(outputPath)
	return err == nil && os.SameFile(input, output)
}

/*
load parses the input file. The returned release function, if not nil,
must be called once the records are no longer needed.

An input that is also the output is never mapped, because writing the
output truncates it while the records still refer to its contents.
*/
func (j *job) load(inputPath, outputPath string, sep gtf.Separator) (release func() error, err error) {
	if gtf.CompressionExt(inputPath) != "" {
		return nil, j.parse(func() (*gtf.Records, error) {
			r, err := xopen.Ropen(inputPath)
			if err != nil {
				return nil, ioError("opening input file", err)
			}
			defer func() {
				_ = r.Close()
			}()
			records, err := gtf.ParseReader(r, sep)
			if err != nil {
				return nil, ioError("reading input file", err)
			}
			return records, nil
		})
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return nil, ioError("opening input file", err)
	}
	defer func() {
		_ = f.Close()
	}()
	info, err := f.Stat()
	if err != nil {
		return nil, ioError("getting input file metadata", err)
	}
	j.checkMemory(info.Size())

	var text string
	if sameFile(info, outputPath) {
		log.Println("Output file is the input file, reading input instead of mapping it")
	} else if !j.opts.disableMmap {
		m, err := mapInput(f, int(info.Size()))
		if err == nil {
			m.Advise(mmap.WillNeed, mmap.Sequential, mmap.HugePage)
			text, release = m.Text(), m.Close
			j.result.InputMapped = true
			log.Printf("Mapped input file to memory, size: %v bytes", m.Len())
		} else {
			internal.Warnf("mapping input file failed, reading it instead: %v", err)
		}
	}
	if !j.result.InputMapped {
		data, err := os.ReadFile(inputPath)
		if err != nil {
			return nil, ioError("reading input file", err)
		}
		text = unsafe.String(unsafe.SliceData(data), len(data))
	}
	threads := j.result.Threads
	return release, j.parse(func() (*gtf.Records, error) {
		return gtf.ParseText(text, sep, threads), nil
	})
}

/*
Sort sorts the GTF or GFF3 file at inputPath into outputPath using the
given number of threads. The annotation format is determined by the
input file extension. Inputs with a compression extension are
decompressed on the fly; outputs ending in .gz are gzip compressed.
*/
func Sort(inputPath, outputPath string, threads int, opts ...Option) (result *JobResult, err error) {
	sep, err := validatePaths(inputPath, outputPath)
	if err != nil {
		return nil, err
	}
	if err := validateThreads(threads); err != nil {
		return nil, err
	}
	j := newJob(inputPath, outputPath, threads, opts)
	defer j.start()()

	release, err := j.load(inputPath, outputPath, sep)
	if release != nil {
		defer func() {
			if nerr := release(); nerr != nil && err == nil {
				result, err = nil, ioError("syncing memory map", nerr)
			}
		}()
	}
	if err != nil {
		return nil, err
	}
	j.build()
	if err := j.write(func() (err error) {
		j.result.OutputMapped, err = output.Write(outputPath, j.index, j.comments(), j.opts.disableMmap)
		return err
	}); err != nil {
		return nil, err
	}
	return j.finish(), nil
}

func validateSink(w io.Writer) error {
	if w == nil {
		return newError(InvalidParameter, "missing output sink")
	}
	if sink, ok := w.(Sink); ok && sink == nil {
		return newError(InvalidParameter, "missing output sink")
	}
	return nil
}

func validateSeparator(sep gtf.Separator) error {
	if !sep.Valid() {
		return newError(InvalidParameter, fmt.Sprintf("invalid attribute separator %q", byte(sep)))
	}
	return nil
}

/*
SortText sorts annotations held in memory, and writes the result to
sink in chunks that end at line boundaries. Records reference text, so
text must not be modified while SortText runs.
*/
func SortText(text string, sink io.Writer, sep gtf.Separator, threads int, opts ...Option) (*JobResult, error) {
	if err := validateSink(sink); err != nil {
		return nil, err
	}
	if err := validateSeparator(sep); err != nil {
		return nil, err
	}
	if err := validateThreads(threads); err != nil {
		return nil, err
	}
	j := newJob("[string]", "[callback]", threads, opts)
	defer j.start()()

	if err := j.parse(func() (*gtf.Records, error) {
		return gtf.ParseText(text, sep, threads), nil
	}); err != nil {
		return nil, err
	}
	j.build()
	if err := j.write(func() error {
		return output.WriteSequential(sink, j.index, j.comments())
	}); err != nil {
		return nil, err
	}
	return j.finish(), nil
}

// SortReader sorts annotations read from r, and writes the result to w.
func SortReader(r io.Reader, w io.Writer, sep gtf.Separator, threads int, opts ...Option) (*JobResult, error) {
	if r == nil {
		return nil, newError(InvalidParameter, "missing input reader")
	}
	if err := validateSink(w); err != nil {
		return nil, err
	}
	if err := validateSeparator(sep); err != nil {
		return nil, err
	}
	if err := validateThreads(threads); err != nil {
		return nil, err
	}
	j := newJob("[reader]", "[writer]", threads, opts)
	defer j.start()()

	if err := j.parse(func() (*gtf.Records, error) {
		records, err := gtf.ParseReader(r, sep)
		if err != nil {
			return nil, ioError("reading input", err)
		}
		return records, nil
	}); err != nil {
		return nil, err
	}
	j.build()
	if err := j.write(func() error {
		return output.WriteSequential(w, j.index, j.comments())
	}); err != nil {
		return nil, err
	}
	return j.finish(), nil
}

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
Package layers builds the hierarchical index of a single chromosome:
genes ordered by start position, the transcripts of each gene, and the
sub-features of each transcript in natural key order.
*/
package layers

import (
	"fmt"
	"sort"

	"github.com/bits-and-blooms/bitset"
	psort "github.com/exascience/pargo/sort"

	"github.com/exascience/gtfsort/gtf"
	"github.com/exascience/gtfsort/natord"
)

// A DuplicatePolicy determines what happens to a sub-feature line whose
// key was already seen in the same transcript.
type DuplicatePolicy int

const (
	// Replace keeps only the last line for a key.
	Replace DuplicatePolicy = iota
	// Keep keeps all lines for a key, in arrival order.
	Keep
)

func (policy DuplicatePolicy) String() string {
	switch policy {
	case Replace:
		return "replace"
	case Keep:
		return "keep"
	default:
		return fmt.Sprintf("DuplicatePolicy(%d)", int(policy))
	}
}

// A Gene is a gene line together with its sort key.
type Gene struct {
	Start int
	ID    string
	Line  string
}

type stableGeneSorter []Gene

func (s stableGeneSorter) SequentialSort(i, j int) {
	genes := s[i:j]
	sort.SliceStable(genes, func(i, j int) bool {
		return genes[i].Start < genes[j].Start
	})
}

func (s stableGeneSorter) NewTemp() psort.StableSorter {
	return stableGeneSorter(make([]Gene, len(s)))
}

func (s stableGeneSorter) Len() int {
	return len(s)
}

func (s stableGeneSorter) Less(i, j int) bool {
	return s[i].Start < s[j].Start
}

func (s stableGeneSorter) Assign(source psort.StableSorter) func(i, j, len int) {
	dst, src := s, source.(stableGeneSorter)
	return func(i, j, len int) {
		copy(dst[i:i+len], src[j:j+len])
	}
}

// SortGenes sorts genes by start position. Genes with equal start
// positions keep their relative order.
func SortGenes(genes []Gene) {
	psort.StableSort(stableGeneSorter(genes))
}

// Features holds the lines of one transcript below its header, grouped
// by key.
type Features struct {
	keys  []string
	lines map[string][]string
}

func newFeatures() *Features {
	return &Features{lines: make(map[string][]string)}
}

// Replace sets the lines for key to just line, and reports whether
// previous lines were discarded.
func (features *Features) Replace(key, line string) (replaced bool) {
	previous, ok := features.lines[key]
	if !ok {
		features.keys = append(features.keys, key)
	}
	features.lines[key] = append(previous[:0], line)
	return len(previous) > 0
}

// Append adds line to the lines for key.
func (features *Features) Append(key, line string) {
	previous, ok := features.lines[key]
	if !ok {
		features.keys = append(features.keys, key)
	}
	features.lines[key] = append(previous, line)
}

// Keys returns the keys in emission order once the features are sorted.
func (features *Features) Keys() []string {
	return features.keys
}

// Lines returns the lines for key in arrival order.
func (features *Features) Lines(key string) []string {
	return features.lines[key]
}

func (features *Features) sort() {
	natord.Strings(features.keys)
}

// Layers is the hierarchical index of one chromosome.
type Layers struct {
	Chrom string

	// Gene lines, ordered by start after Build.
	Genes []Gene

	// Maps gene IDs onto their transcript IDs, in arrival order.
	Transcripts map[string][]string

	// Maps transcript IDs onto their transcript lines.
	Headers map[string]string

	// Maps transcript IDs onto the lines below their header.
	Features map[string]*Features

	// Lines discarded because of a duplicate key.
	Replaced int

	// Transcripts that are not emitted because their gene has no gene line.
	Orphans int
}

// New allocates and initializes empty layers for the given chromosome.
func New(chrom string) *Layers {
	return &Layers{
		Chrom:       chrom,
		Transcripts: make(map[string][]string),
		Headers:     make(map[string]string),
		Features:    make(map[string]*Features),
	}
}

func (layers *Layers) features(transcriptID string) *Features {
	features, ok := layers.Features[transcriptID]
	if !ok {
		features = newFeatures()
		layers.Features[transcriptID] = features
	}
	return features
}

// Add routes a single record into the layers.
func (layers *Layers) Add(record *gtf.Record, policy DuplicatePolicy) {
	switch {
	case record.Feature == gtf.Gene:
		layers.Genes = append(layers.Genes, Gene{
			Start: record.Start,
			ID:    record.GeneID,
			Line:  record.Line,
		})
	case record.Feature == gtf.Transcript:
		if _, ok := layers.Headers[record.TranscriptID]; ok {
			layers.Replaced++
			return
		}
		layers.Headers[record.TranscriptID] = record.Line
		layers.Transcripts[record.GeneID] = append(layers.Transcripts[record.GeneID], record.TranscriptID)
	case gtf.IsSubFeature(record.Feature):
		features := layers.features(record.TranscriptID)
		key := record.SubFeatureKey()
		if policy == Keep {
			features.Append(key, record.Line)
		} else if features.Replace(key, record.Line) {
			layers.Replaced++
		}
	default:
		layers.features(record.TranscriptID).Append(record.Feature, record.Line)
	}
}

// Finish sorts all layers and computes the orphan count. It must be
// called once after the last Add.
func (layers *Layers) Finish() {
	for _, features := range layers.Features {
		features.sort()
	}
	SortGenes(layers.Genes)

	ordinals := make(map[string]uint, len(layers.Headers))
	for _, transcripts := range layers.Transcripts {
		for _, transcriptID := range transcripts {
			ordinals[transcriptID] = uint(len(ordinals))
		}
	}
	reached := bitset.New(uint(len(ordinals)))
	for _, gene := range layers.Genes {
		for _, transcriptID := range layers.Transcripts[gene.ID] {
			reached.Set(ordinals[transcriptID])
		}
	}
	layers.Orphans = len(ordinals) - int(reached.Count())
}

// Build creates the layers for one chromosome from its records, which
// are routed in the given order.
func Build(chrom string, records []gtf.Record, policy DuplicatePolicy) *Layers {
	layers := New(chrom)
	for i := range records {
		layers.Add(&records[i], policy)
	}
	layers.Finish()
	return layers
}

// DanglingGeneError is returned when a gene has no transcripts.
type DanglingGeneError struct {
	Chrom, GeneID string
}

func (err *DanglingGeneError) Error() string {
	return fmt.Sprintf("gene %v on chromosome %v has no transcripts", err.GeneID, err.Chrom)
}

// EmptyTranscriptError is returned when a transcript has no features.
type EmptyTranscriptError struct {
	Chrom, TranscriptID string
}

func (err *EmptyTranscriptError) Error() string {
	return fmt.Sprintf("transcript %v on chromosome %v has no exons or other features", err.TranscriptID, err.Chrom)
}

/*
Walk calls emit for every line of the chromosome in sorted order: each
gene, followed by each of its transcripts, each transcript followed by
its features in key order. Lines that share a key are emitted in
arrival order.

Walk stops at the first error returned by emit, or at the first gene
without transcripts or transcript without features.
*/
func (layers *Layers) Walk(emit func(line string) error) error {
	for _, gene := range layers.Genes {
		transcripts, ok := layers.Transcripts[gene.ID]
		if !ok {
			return &DanglingGeneError{Chrom: layers.Chrom, GeneID: gene.ID}
		}
		if err := emit(gene.Line); err != nil {
			return err
		}
		for _, transcriptID := range transcripts {
			features, ok := layers.Features[transcriptID]
			if !ok {
				return &EmptyTranscriptError{Chrom: layers.Chrom, TranscriptID: transcriptID}
			}
			if err := emit(layers.Headers[transcriptID]); err != nil {
				return err
			}
			for _, key := range features.keys {
				for _, line := range features.lines[key] {
					if err := emit(line); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// Size returns the number of bytes Walk emits, counting a newline per line.
func (layers *Layers) Size() (size int, err error) {
	err = layers.Walk(func(line string) error {
		size += len(line) + 1
		return nil
	})
	return size, err
}

// AppendTo appends the newline-terminated lines of the chromosome to buf.
func (layers *Layers) AppendTo(buf []byte) ([]byte, error) {
	err := layers.Walk(func(line string) error {
		buf = append(buf, line...)
		buf = append(buf, '\n')
		return nil
	})
	return buf, err
}

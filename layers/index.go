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

package layers

import (
	"log"
	"runtime"

	"github.com/exascience/pargo/parallel"
	"github.com/exascience/pargo/sync"

	"github.com/exascience/gtfsort/gtf"
	"github.com/exascience/gtfsort/internal"
	"github.com/exascience/gtfsort/natord"
)

type chromKey string

func (key chromKey) Hash() uint64 {
	return internal.StringHash(string(key))
}

// An Index maps chromosome names onto their layers. It is safe for
// concurrent use.
type Index struct {
	chroms *sync.Map
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{chroms: sync.NewMap(16 * runtime.GOMAXPROCS(0))}
}

// Store sets the layers for their chromosome. Each chromosome can be
// stored only once.
func (index *Index) Store(layers *Layers) {
	if _, loaded := index.chroms.LoadOrStore(chromKey(layers.Chrom), layers); loaded {
		log.Panicf("chromosome %v indexed twice", layers.Chrom)
	}
}

// Get returns the layers for the given chromosome, or nil.
func (index *Index) Get(chrom string) *Layers {
	if value, ok := index.chroms.Load(chromKey(chrom)); ok {
		return value.(*Layers)
	}
	return nil
}

// Chromosomes returns the indexed chromosome names in natural order.
func (index *Index) Chromosomes() []string {
	var chroms []string
	index.chroms.Range(func(key, _ interface{}) bool {
		chroms = append(chroms, string(key.(chromKey)))
		return true
	})
	natord.Strings(chroms)
	return chroms
}

// Stats returns the total number of discarded duplicate lines and
// orphaned transcripts over all chromosomes.
func (index *Index) Stats() (replaced, orphans int) {
	index.chroms.Range(func(_, value interface{}) bool {
		layers := value.(*Layers)
		replaced += layers.Replaced
		orphans += layers.Orphans
		return true
	})
	return
}

/*
BuildIndex builds the layers of every chromosome in records, with one
parallel task per chromosome.
*/
func BuildIndex(records *gtf.Records, policy DuplicatePolicy) *Index {
	chroms := make([]string, 0, len(records.Chroms))
	for chrom := range records.Chroms {
		chroms = append(chroms, chrom)
	}
	index := NewIndex()
	if len(chroms) == 0 {
		return index
	}
	parallel.Range(0, len(chroms), len(chroms), func(low, high int) {
		for i := low; i < high; i++ {
			chrom := chroms[i]
			index.Store(Build(chrom, records.Chroms[chrom], policy))
		}
	})
	return index
}

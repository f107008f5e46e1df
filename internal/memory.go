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

package internal

import (
	"math"

	"github.com/pbnjay/memory"
)

const bytesPerMB = 1024 * 1024

/*
PeakMemoryMB returns the peak resident set size of the current process
in megabytes, or NaN if the platform cannot report it.
*/
func PeakMemoryMB() float64 {
	peak, ok := peakMemoryBytes()
	if !ok {
		return math.NaN()
	}
	return float64(peak) / bytesPerMB
}

// SystemMemory returns the total physical memory in bytes, or 0 if unknown.
func SystemMemory() uint64 {
	return memory.TotalMemory()
}

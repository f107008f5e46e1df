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

// Package natord implements natural ordering of strings: runs of ASCII
// digits are compared by their numeric value, everything else byte by
// byte, so that "chr2" sorts before "chr10" and "exon9" before "exon10".
package natord

import "sort"

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// digitRun returns the end of the run of digits starting at i, and the
// index of the first significant (non-zero) digit in that run.
func digitRun(s string, i int) (end, significant int) {
	significant = -1
	for end = i; end < len(s) && isDigit(s[end]); end++ {
		if significant < 0 && s[end] != '0' {
			significant = end
		}
	}
	if significant < 0 {
		significant = end
	}
	return
}

/*
Compare returns an integer comparing two strings in natural order. The
result is 0 if a == b, -1 if a < b, and +1 if a > b.

Maximal runs of ASCII digits are compared as non-negative integers of
arbitrary size. When two runs have the same value, the run with fewer
leading zeros sorts first. All other bytes are compared by value, which
for UTF-8 input is the same as comparing code points. A string that is a
strict prefix of the other sorts first.
*/
func Compare(a, b string) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			endA, sigA := digitRun(a, i)
			endB, sigB := digitRun(b, j)
			// longer significant part means larger value
			if lenA, lenB := endA-sigA, endB-sigB; lenA != lenB {
				if lenA < lenB {
					return -1
				}
				return 1
			}
			for k := 0; k < endA-sigA; k++ {
				if da, db := a[sigA+k], b[sigB+k]; da != db {
					if da < db {
						return -1
					}
					return 1
				}
			}
			if zerosA, zerosB := sigA-i, sigB-j; zerosA != zerosB {
				if zerosA < zerosB {
					return -1
				}
				return 1
			}
			i, j = endA, endB
			continue
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case len(a)-i < len(b)-j:
		return -1
	case len(a)-i > len(b)-j:
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts before b in natural order.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// Strings sorts a slice of strings in natural order.
func Strings(s []string) {
	sort.Slice(s, func(i, j int) bool {
		return Compare(s[i], s[j]) < 0
	})
}

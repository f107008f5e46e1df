//go:build linux || darwin || freebsd

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

package cmd

import (
	"log"
	"os"

	"golang.org/x/sys/unix"
)

// redirectStderr sends anything written to file descriptor 2, such as
// runtime panics, to f, and returns a file for the original stderr.
func redirectStderr(f *os.File) *os.File {
	orgStderr, err := unix.Dup(2)
	if err != nil {
		log.Panic(err)
	}
	ferr := os.NewFile(uintptr(orgStderr), "/dev/stderr")
	if err := unix.Dup2(int(f.Fd()), 2); err != nil {
		log.Panic(err)
	}
	return ferr
}

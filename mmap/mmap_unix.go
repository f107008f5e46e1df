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

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

type unixRegion struct {
	data []byte
}

func mapFile(f *os.File, size int, writable bool) (region, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, &os.PathError{Op: "mmap", Path: f.Name(), Err: err}
	}
	return &unixRegion{data: data}, nil
}

func (r *unixRegion) bytes() []byte {
	return r.data
}

func (r *unixRegion) advise(advice Advice) error {
	flag, ok := madviseFlag(advice)
	if !ok {
		return nil
	}
	return unix.Madvise(r.data, flag)
}

func (r *unixRegion) flush() error {
	return unix.Msync(r.data, unix.MS_SYNC)
}

func (r *unixRegion) unmap() error {
	return unix.Munmap(r.data)
}

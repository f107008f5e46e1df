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
	"unsafe"

	"golang.org/x/sys/windows"
)

type windowsRegion struct {
	data    []byte
	addr    uintptr
	mapping windows.Handle
}

func mapFile(f *os.File, size int, writable bool) (region, error) {
	prot, access := uint32(windows.PAGE_READONLY), uint32(windows.FILE_MAP_READ)
	if writable {
		prot, access = windows.PAGE_READWRITE, windows.FILE_MAP_WRITE
	}
	size64 := uint64(size)
	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, prot, uint32(size64>>32), uint32(size64), nil)
	if err != nil {
		return nil, &os.PathError{Op: "CreateFileMapping", Path: f.Name(), Err: err}
	}
	addr, err := windows.MapViewOfFile(h, access, 0, 0, uintptr(size))
	if err != nil {
		_ = windows.CloseHandle(h)
		return nil, &os.PathError{Op: "MapViewOfFile", Path: f.Name(), Err: err}
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return &windowsRegion{data: data, addr: addr, mapping: h}, nil
}

func (r *windowsRegion) bytes() []byte {
	return r.data
}

// Windows has no equivalent of madvise for mapped views.
func (r *windowsRegion) advise(Advice) error {
	return nil
}

func (r *windowsRegion) flush() error {
	return windows.FlushViewOfFile(r.addr, uintptr(len(r.data)))
}

func (r *windowsRegion) unmap() error {
	err := windows.UnmapViewOfFile(r.addr)
	if nerr := windows.CloseHandle(r.mapping); err == nil {
		err = nerr
	}
	return err
}

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
Package mmap provides read-only and read-write memory-mapped views of
files.

A mapping owns its operating system resources. It is unmapped exactly
once: either by an explicit call to Close, which reports the unmap
error, or by a finalizer when the mapping becomes unreachable without
having been closed, which logs the error instead. Slices returned by
Bytes and Text are only valid until the mapping is closed, and do not
keep the mapping reachable on their own.
*/
package mmap

import (
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"unsafe"

	"github.com/exascience/gtfsort/internal"
)

// An Advice is a hint to the operating system about the expected
// access pattern of a mapped region.
type Advice int

// Supported advice values.
const (
	Normal Advice = iota
	Random
	Sequential
	WillNeed
	DontNeed
	HugePage
)

func (advice Advice) String() string {
	switch advice {
	case Normal:
		return "normal"
	case Random:
		return "random"
	case Sequential:
		return "sequential"
	case WillNeed:
		return "will-need"
	case DontNeed:
		return "dont-need"
	case HugePage:
		return "huge-page"
	default:
		return fmt.Sprintf("advice(%d)", int(advice))
	}
}

// ErrUnsupported is returned on platforms without memory mapping support.
var ErrUnsupported = errors.New("memory mapping is not supported on this platform")

// region is implemented once per platform.
type region interface {
	bytes() []byte
	// advise returns nil for advice the platform does not support.
	advise(advice Advice) error
	flush() error
	unmap() error
}

type mapping struct {
	r region
}

func newMapping(f *os.File, size int, writable bool) (mapping, error) {
	if size < 0 {
		return mapping{}, fmt.Errorf("invalid mapping size %v for %v", size, f.Name())
	}
	if size == 0 {
		return mapping{}, nil
	}
	r, err := mapFile(f, size, writable)
	if err != nil {
		return mapping{}, err
	}
	return mapping{r: r}, nil
}

func (m *mapping) data() []byte {
	if m.r == nil {
		return nil
	}
	return m.r.bytes()
}

// Len returns the size of the mapped region in bytes.
func (m *mapping) Len() int {
	return len(m.data())
}

// Advise passes each of the given hints to the operating system. Hints
// the platform does not know are ignored, and failures are logged
// rather than returned.
func (m *mapping) Advise(advice ...Advice) {
	if m.r == nil {
		return
	}
	for _, a := range advice {
		if err := m.r.advise(a); err != nil {
			internal.Warnf("madvise %v: %v", a, err)
		}
	}
}

func (m *mapping) unmap() error {
	if m.r == nil {
		return nil
	}
	r := m.r
	m.r = nil
	return r.unmap()
}

// A MemoryMap is a read-only view of a file.
type MemoryMap struct {
	mapping
}

func finalizeMemoryMap(m *MemoryMap) {
	if err := m.unmap(); err != nil {
		log.Printf("failed to unmap memory map that was never closed: %v", err)
	}
}

// Map maps the first size bytes of the given file read-only. A size of
// 0 yields an empty mapping without a system call.
func Map(f *os.File, size int) (*MemoryMap, error) {
	mp, err := newMapping(f, size, false)
	if err != nil {
		return nil, err
	}
	m := &MemoryMap{mapping: mp}
	if m.r != nil {
		runtime.SetFinalizer(m, finalizeMemoryMap)
	}
	return m, nil
}

// Bytes returns the mapped region. The result must not be modified.
func (m *MemoryMap) Bytes() []byte {
	return m.data()
}

// Text returns the mapped region as a string that shares memory with
// the mapping.
func (m *MemoryMap) Text() string {
	data := m.data()
	if len(data) == 0 {
		return ""
	}
	return unsafe.String(&data[0], len(data))
}

// Close unmaps the region. Calling Close more than once is a no-op.
func (m *MemoryMap) Close() error {
	runtime.SetFinalizer(m, nil)
	return m.unmap()
}

// A MemoryMapMut is a shared read-write view of a file. Writes
// to the region are written back to the file.
type MemoryMapMut struct {
	mapping
}

func finalizeMemoryMapMut(m *MemoryMapMut) {
	if err := m.unmap(); err != nil {
		log.Printf("failed to unmap memory map that was never closed: %v", err)
	}
}

// MapMut maps the first size bytes of the given file for reading and
// writing. The file must be opened for reading and writing, and must be
// at least size bytes long. A size of 0 yields an empty mapping without
// a system call.
func MapMut(f *os.File, size int) (*MemoryMapMut, error) {
	mp, err := newMapping(f, size, true)
	if err != nil {
		return nil, err
	}
	m := &MemoryMapMut{mapping: mp}
	if m.r != nil {
		runtime.SetFinalizer(m, finalizeMemoryMapMut)
	}
	return m, nil
}

// Bytes returns the mapped region for reading and writing.
func (m *MemoryMapMut) Bytes() []byte {
	return m.data()
}

// Flush writes modified pages back to the file.
func (m *MemoryMapMut) Flush() error {
	if m.r == nil {
		return nil
	}
	return m.r.flush()
}

// Close flushes and unmaps the region, and reports the first error
// encountered. Calling Close more than once is a no-op.
func (m *MemoryMapMut) Close() error {
	runtime.SetFinalizer(m, nil)
	err := m.Flush()
	if nerr := m.unmap(); err == nil {
		err = nerr
	}
	return err
}

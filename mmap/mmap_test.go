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
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func supported() bool {
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd", "windows":
		return true
	default:
		return false
	}
}

func TestZeroLength(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "empty"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	m, err := Map(f, 0)
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 0 || len(m.Bytes()) != 0 || m.Text() != "" {
		t.Error("Map zero length failed")
	}
	m.Advise(WillNeed, Sequential, HugePage)
	if err := m.Close(); err != nil {
		t.Error("Close zero length failed")
	}
	mm, err := MapMut(f, 0)
	if err != nil {
		t.Fatal(err)
	}
	if mm.Len() != 0 || mm.Flush() != nil || mm.Close() != nil {
		t.Error("MapMut zero length failed")
	}
}

func TestNegativeLength(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "negative"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := Map(f, -1); err == nil {
		t.Error("Map negative length failed")
	}
}

func TestRoundTrip(t *testing.T) {
	if !supported() {
		t.Skip("memory mapping not supported")
	}
	name := filepath.Join(t.TempDir(), "data")
	content := []byte("chr1\tsource\tgene\t11\t20\t.\t+\t.\tgene_id \"g1\";\n")
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(int64(len(content))); err != nil {
		t.Fatal(err)
	}
	mm, err := MapMut(f, len(content))
	if err != nil {
		t.Fatal(err)
	}
	mm.Advise(Random)
	if mm.Len() != len(content) {
		t.Error("MapMut length failed")
	}
	copy(mm.Bytes(), content)
	if err := mm.Close(); err != nil {
		t.Error("MapMut Close failed")
	}
	if err := mm.Close(); err != nil {
		t.Error("MapMut double Close failed")
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	f, err = os.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	m, err := Map(f, len(content))
	if err != nil {
		t.Fatal(err)
	}
	m.Advise(WillNeed, Sequential, HugePage)
	if !bytes.Equal(m.Bytes(), content) {
		t.Error("Map contents failed")
	}
	if m.Text() != string(content) {
		t.Error("Map Text failed")
	}
	if err := m.Close(); err != nil {
		t.Error("Map Close failed")
	}
	if m.Len() != 0 || m.Close() != nil {
		t.Error("Map double Close failed")
	}
}

func TestAdviceString(t *testing.T) {
	if HugePage.String() != "huge-page" || Advice(42).String() != "advice(42)" {
		t.Error("Advice String failed")
	}
}

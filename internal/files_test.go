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
	"os"
	"path/filepath"
	"testing"
)

func TestFullPathname(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "gtfsort.log")
	if path, err := FullPathname(abs); err != nil || path != abs {
		t.Error("FullPathname absolute failed")
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if path, err := FullPathname(filepath.Join("logs", "gtfsort.log")); err != nil || path != filepath.Join(wd, "logs", "gtfsort.log") {
		t.Error("FullPathname relative failed")
	}
}

func TestFileCreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	MkdirAll(dir, 0700)
	f := FileCreate(filepath.Join(dir, "out.txt"))
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.txt")); err != nil {
		t.Error("FileCreate failed")
	}
}

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
	"fmt"
	"log"
	"time"

	"github.com/fatih/color"
)

var (
	warningPrefix = color.New(color.FgYellow, color.Bold).SprintFunc()
	errorPrefix   = color.New(color.FgRed, color.Bold).SprintFunc()
)

// Warnf logs a formatted warning with a highlighted prefix.
func Warnf(format string, v ...interface{}) {
	log.Print(warningPrefix("Warning:"), " ", fmt.Sprintf(format, v...))
}

// Errorf logs a formatted error with a highlighted prefix.
func Errorf(format string, v ...interface{}) {
	log.Print(errorPrefix("Error:"), " ", fmt.Sprintf(format, v...))
}

/*
Timed runs f, logs the elapsed wall-clock time for the given phase, and
returns it in seconds together with the error returned by f.
*/
func Timed(phase string, f func() error) (float64, error) {
	start := time.Now()
	err := f()
	secs := time.Since(start).Seconds()
	log.Printf("%v: %.3fs", phase, secs)
	return secs, err
}

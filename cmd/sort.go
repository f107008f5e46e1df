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
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/exascience/gtfsort/gtf"
	"github.com/exascience/gtfsort/layers"
	"github.com/exascience/gtfsort/sorter"
)

// SortHelp is the help string for the sort command.
const SortHelp = "Sort parameters:\n" +
	"gtfsort sort (gtf-file | gff3-file) (gtf-file | gff3-file)\n" +
	"[--threads nr]\n" +
	"[--no-mmap]\n" +
	"[--keep-duplicates]\n" +
	"[--drop-comments]\n" +
	"[--log-path path]\n" +
	"[--timed]\n"

// Sort implements the gtfsort sort command.
func Sort() error {
	var (
		threads                                     int
		noMmap, keepDuplicates, dropComments, timed bool
		logPath                                     string
	)

	var flags flag.FlagSet

	flags.IntVar(&threads, "threads", runtime.NumCPU(), "number of worker threads")
	flags.BoolVar(&noMmap, "no-mmap", false, "read and write files without memory mapping")
	flags.BoolVar(&keepDuplicates, "keep-duplicates", false, "keep all sub-features with the same exon number and feature type")
	flags.BoolVar(&dropComments, "drop-comments", false, "do not copy comment lines to the output")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")

	parseFlags(&flags, 4, SortHelp)

	input := getFilename(os.Args[2], SortHelp)
	output := getFilename(os.Args[3], SortHelp)

	setLogOutput(logPath)

	// sanity checks

	sanityChecksFailed := false

	if !checkExist("", input) {
		sanityChecksFailed = true
	} else if _, err := gtf.SeparatorFor(input); err != nil {
		log.Printf("Error: File %v is not a GTF or GFF3 file.\n", input)
		sanityChecksFailed = true
	}

	if !checkCreate("", output) {
		sanityChecksFailed = true
	} else if _, err := gtf.SeparatorFor(output); err != nil {
		log.Printf("Error: File %v is not a GTF or GFF3 file.\n", output)
		sanityChecksFailed = true
	}

	if threads < 1 {
		log.Println("Error: Invalid number of threads:", threads)
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, SortHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " sort ", input, " ", output)
	fmt.Fprint(&command, " --threads ", threads)
	var opts []sorter.Option
	if noMmap {
		opts = append(opts, sorter.WithoutMmap())
		fmt.Fprint(&command, " --no-mmap")
	}
	if keepDuplicates {
		opts = append(opts, sorter.WithDuplicatePolicy(layers.Keep))
		fmt.Fprint(&command, " --keep-duplicates")
	}
	if dropComments {
		opts = append(opts, sorter.WithoutComments())
		fmt.Fprint(&command, " --drop-comments")
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}
	if timed {
		fmt.Fprint(&command, " --timed")
	}

	// executing command

	log.Println("Executing command:\n", command.String())

	return timedRun(timed, "Sorting annotations.", func() error {
		result, err := sorter.Sort(input, output, threads, opts...)
		if err != nil {
			return err
		}
		if result.InputMapped {
			log.Println("Input file was memory mapped.")
		}
		if result.OutputMapped {
			log.Println("Output file was written through a memory map.")
		}
		return nil
	})
}

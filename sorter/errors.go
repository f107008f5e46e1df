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

package sorter

import (
	"errors"
	"fmt"

	"github.com/exascience/gtfsort/layers"
	"github.com/exascience/gtfsort/output"
)

// An ErrorKind classifies the errors returned by a sort job.
type ErrorKind int

const (
	// InvalidInput: the input is missing, empty, or not a GTF or GFF3 file.
	InvalidInput ErrorKind = iota + 1
	// InvalidOutput: the output is not a GTF or GFF3 file.
	InvalidOutput
	// ParseError: the input cannot be ordered hierarchically.
	ParseError
	// InvalidThreads: the number of threads is less than one.
	InvalidThreads
	// IoError: reading the input or writing the output failed.
	IoError
	// InvalidParameter: an argument other than the above is invalid.
	InvalidParameter
)

func (kind ErrorKind) String() string {
	switch kind {
	case InvalidInput:
		return "invalid input"
	case InvalidOutput:
		return "invalid output"
	case ParseError:
		return "parse error"
	case InvalidThreads:
		return "invalid number of threads"
	case IoError:
		return "I/O error"
	case InvalidParameter:
		return "invalid parameter"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(kind))
	}
}

/*
Error is the error type returned by Sort, SortText, and SortReader.

Op is a short label for the failed operation, such as "opening input
file". Errors compare equal under errors.Is when their kinds match, so
callers can test for a category with

	errors.Is(err, &sorter.Error{Kind: sorter.IoError})
*/
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
	Err  error
}

func (err *Error) Error() string {
	msg := err.Kind.String()
	if err.Op != "" {
		msg += ": while " + err.Op
	}
	if err.Msg != "" {
		msg += ": " + err.Msg
	}
	if err.Err != nil {
		msg += ": " + err.Err.Error()
	}
	return msg
}

func (err *Error) Unwrap() error {
	return err.Err
}

// Is reports whether target is an *Error of the same kind.
func (err *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == err.Kind
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func ioError(op string, err error) *Error {
	return &Error{Kind: IoError, Op: op, Err: err}
}

// outputError classifies errors returned by the output package.
func outputError(err error) *Error {
	var dangling *layers.DanglingGeneError
	var empty *layers.EmptyTranscriptError
	if errors.As(err, &dangling) || errors.As(err, &empty) {
		return &Error{Kind: ParseError, Op: "ordering annotations", Err: err}
	}
	var opErr *output.OpError
	if errors.As(err, &opErr) {
		return ioError(opErr.Op, err)
	}
	return ioError("writing output", err)
}

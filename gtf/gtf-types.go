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

package gtf

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// A Separator is the byte that separates keys from values in the
// attribute column.
type Separator byte

const (
	// GTF attributes look like: gene_id "ENSG00000223972";
	GTF Separator = ' '
	// GFF attributes look like: gene_id=ENSG00000223972;
	GFF Separator = '='
)

// Valid reports whether the separator is one of GTF or GFF.
func (sep Separator) Valid() bool {
	return sep == GTF || sep == GFF
}

func (sep Separator) String() string {
	switch sep {
	case GTF:
		return "gtf"
	case GFF:
		return "gff3"
	default:
		return fmt.Sprintf("separator(%q)", byte(sep))
	}
}

// File extensions recognized by gtfsort.
const (
	GtfExt  = ".gtf"
	GffExt  = ".gff"
	Gff3Ext = ".gff3"
)

var compressionExts = []string{".gz", ".bz2", ".xz", ".zst"}

// CompressionExt returns the compression suffix of the filename, or ""
// if the filename does not denote a compressed file.
func CompressionExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, c := range compressionExts {
		if ext == c {
			return ext
		}
	}
	return ""
}

// Ext returns the annotation format extension of the filename,
// ignoring a compression suffix.
func Ext(filename string) string {
	filename = filename[:len(filename)-len(CompressionExt(filename))]
	return strings.ToLower(filepath.Ext(filename))
}

// ErrUnknownExtension is returned for files that are neither GTF nor GFF3.
var ErrUnknownExtension = errors.New("unknown file extension, please specify a GTF or GFF3 file")

// SeparatorFor returns the attribute separator for the given filename.
func SeparatorFor(filename string) (Separator, error) {
	switch Ext(filename) {
	case GtfExt:
		return GTF, nil
	case GffExt, Gff3Ext:
		return GFF, nil
	default:
		return 0, ErrUnknownExtension
	}
}

// Feature types that determine where a line ends up in the sorted output.
const (
	Gene       = "gene"
	Transcript = "transcript"
	Exon       = "exon"
	CDS        = "CDS"
	StartCodon = "start_codon"
	StopCodon  = "stop_codon"
)

// IsSubFeature reports whether lines of the given feature type are keyed
// by exon number within their transcript.
func IsSubFeature(feature string) bool {
	switch feature {
	case Exon, CDS, StartCodon, StopCodon:
		return true
	default:
		return false
	}
}

// SubFeatureSuffix returns the byte appended to the exon number to
// order sub-features sharing that exon number.
func SubFeatureSuffix(feature string) byte {
	switch feature {
	case Exon:
		return 'a'
	case CDS:
		return 'b'
	case StartCodon:
		return 'c'
	case StopCodon:
		return 'd'
	default:
		return 'e'
	}
}

// Default attribute values for keys that are absent.
const (
	NoTranscriptID = "0"
	NoExonNumber   = "z"
	NoExonID       = "0"
)

// ErrEmptyLine is returned when parsing an empty line or attribute list.
var ErrEmptyLine = errors.New("empty line, cannot parse attributes")

// A MissingGeneIDError is returned for attribute lists without gene_id.
type MissingGeneIDError struct {
	Attributes string
}

func (err *MissingGeneIDError) Error() string {
	return fmt.Sprintf("missing gene_id attribute in: %v", err.Attributes)
}

// A FieldCountError is returned for lines with fewer than nine columns.
type FieldCountError struct {
	Fields int
	Line   string
}

func (err *FieldCountError) Error() string {
	return fmt.Sprintf("invalid GTF line with %v instead of at least 9 fields: %v", err.Fields, err.Line)
}

// A StartError is returned when the start column is not an integer.
type StartError struct {
	Value string
	Err   error
}

func (err *StartError) Error() string {
	return fmt.Sprintf("invalid start position %v: %v", err.Value, err.Err)
}

func (err *StartError) Unwrap() error {
	return err.Err
}

// Attribute is the projection of an attribute list onto the keys
// gtfsort needs for grouping lines.
type Attribute struct {
	GeneID       string
	TranscriptID string
	ExonNumber   string
	ExonID       string
}

// extractValue returns the value of field if it starts with key
// directly followed by the separator.
func extractValue(field, key string, sep Separator) (string, bool) {
	if len(field) <= len(key) || field[:len(key)] != key || field[len(key)] != byte(sep) {
		return "", false
	}
	return strings.Trim(field[len(key)+1:], `"`), true
}

/*
ParseAttribute parses the attribute column of a GTF/GFF3 line.

Fields are separated by ';', and leading spaces of each field are
ignored. Keys are matched case-sensitively and must be directly
followed by the separator. Values are unquoted. Unknown keys are
ignored; if a key occurs more than once, the last value wins.

The resulting strings share memory with the given string.
*/
func ParseAttribute(attributes string, sep Separator) (attr Attribute, err error) {
	attributes = strings.TrimRight(attributes, " \t\r\n")
	if attributes == "" {
		return attr, ErrEmptyLine
	}
	var geneID, transcriptID, exonNumber, exonID string
	var foundGeneID bool
	var sc StringScanner
	sc.Reset(attributes)
	for sc.Len() > 0 {
		sc.SkipSpace()
		field, _ := sc.ReadUntilByte(';')
		if value, ok := extractValue(field, "gene_id", sep); ok {
			geneID, foundGeneID = value, true
		} else if value, ok := extractValue(field, "transcript_id", sep); ok {
			transcriptID = value
		} else if value, ok := extractValue(field, "exon_number", sep); ok {
			exonNumber = value
		} else if value, ok := extractValue(field, "exon_id", sep); ok {
			exonID = value
		}
	}
	if !foundGeneID {
		return attr, &MissingGeneIDError{Attributes: attributes}
	}
	attr.GeneID = geneID
	attr.TranscriptID = transcriptID
	if attr.TranscriptID == "" {
		attr.TranscriptID = NoTranscriptID
	}
	attr.ExonNumber = exonNumber
	if attr.ExonNumber == "" {
		attr.ExonNumber = NoExonNumber
	}
	attr.ExonID = exonID
	if attr.ExonID == "" {
		attr.ExonID = NoExonID
	}
	return attr, nil
}

// A Record is a parsed GTF/GFF3 line, reduced to the fields that
// determine its position in the sorted output.
type Record struct {
	Chrom        string
	Feature      string
	Start        int
	GeneID       string
	TranscriptID string
	ExonNumber   string
	Line         string
}

// Column indices of a GTF/GFF3 line.
const (
	FieldSeqid = iota
	FieldSource
	FieldType
	FieldStart
	FieldEnd
	FieldScore
	FieldStrand
	FieldPhase
	FieldAttributes
	nFields
)

/*
ParseRecord parses a single GTF/GFF3 line without its line terminator.
The line must have at least nine tab-separated columns, and its ninth
column is parsed with ParseAttribute.

The resulting record shares memory with the given line.
*/
func ParseRecord(line string, sep Separator) (record Record, err error) {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	if line == "" {
		return record, ErrEmptyLine
	}
	var fields [nFields]string
	var sc StringScanner
	sc.Reset(line)
	for i := range fields {
		field, found := sc.ReadUntilByte('\t')
		fields[i] = field
		if !found && i < FieldAttributes {
			return record, &FieldCountError{Fields: i + 1, Line: line}
		}
	}
	start, err := strconv.Atoi(fields[FieldStart])
	if err != nil {
		return record, &StartError{Value: fields[FieldStart], Err: err}
	}
	attr, err := ParseAttribute(fields[FieldAttributes], sep)
	if err != nil {
		return record, err
	}
	return Record{
		Chrom:        fields[FieldSeqid],
		Feature:      fields[FieldType],
		Start:        start,
		GeneID:       attr.GeneID,
		TranscriptID: attr.TranscriptID,
		ExonNumber:   attr.ExonNumber,
		Line:         line,
	}, nil
}

// SubFeatureKey returns the natural-order key of an exon, CDS, start
// or stop codon within its transcript.
func (record *Record) SubFeatureKey() string {
	return record.ExonNumber + string(SubFeatureSuffix(record.Feature))
}

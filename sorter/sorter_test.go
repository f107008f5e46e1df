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
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"

	"github.com/exascience/gtfsort/gtf"
	"github.com/exascience/gtfsort/layers"
	"github.com/exascience/gtfsort/mmap"
	"github.com/exascience/gtfsort/natord"
)

func gtfLine(chrom, feature string, start int, attributes string) string {
	return fmt.Sprintf("%v\ttest\t%v\t%v\t%v\t.\t+\t.\t%v", chrom, feature, start, start+99, attributes)
}

// geneLines returns a gene with one transcript of two exons.
func geneLines(chrom string, start int, id string) (gene, transcript, exon1, exon2 string) {
	gene = gtfLine(chrom, "gene", start, fmt.Sprintf(`gene_id "%v";`, id))
	transcript = gtfLine(chrom, "transcript", start, fmt.Sprintf(`gene_id "%v"; transcript_id "%v.1";`, id, id))
	exon1 = gtfLine(chrom, "exon", start, fmt.Sprintf(`gene_id "%v"; transcript_id "%v.1"; exon_number "1";`, id, id))
	exon2 = gtfLine(chrom, "exon", start+50, fmt.Sprintf(`gene_id "%v"; transcript_id "%v.1"; exon_number "2";`, id, id))
	return
}

func joinLines(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func sortFile(t testing.TB, name, contents string, opts ...Option) (string, *JobResult) {
	dir := t.TempDir()
	input := filepath.Join(dir, name)
	if err := os.WriteFile(input, []byte(contents), 0666); err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(dir, "sorted"+filepath.Ext(name))
	result, err := Sort(input, output, 2, opts...)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	return string(data), result
}

func TestSortExons(t *testing.T) {
	g1, t1, e11, e12 := geneLines("chr1", 1000, "g1")
	g2, t2, e21, e22 := geneLines("chr2", 500, "g2")
	input := joinLines(e22, g2, e12, t2, e21, g1, e11, t1)
	expected := joinLines(g1, t1, e11, e12, g2, t2, e21, e22)
	if output, _ := sortFile(t, "in.gtf", input); output != expected {
		t.Error("Sort exons failed")
	}
	if output, _ := sortFile(t, "in.gtf", input, WithoutMmap()); output != expected {
		t.Error("Sort exons without mmap failed")
	}
}

func TestSortMalformedLine(t *testing.T) {
	g1, t1, e11, e12 := geneLines("chr1", 1000, "g1")
	malformed := gtfLine("chr1", "exon", 1010, `transcript_id "g1.1"; exon_number "3";`)
	output, result := sortFile(t, "in.gtf", joinLines(e12, malformed, t1, e11, g1))
	if output != joinLines(g1, t1, e11, e12) {
		t.Error("Sort malformed line failed")
	}
	if result.Dropped != 1 || result.Records != 4 {
		t.Error("Sort malformed line counts failed")
	}
}

func TestSortChromosomeOrder(t *testing.T) {
	var input, expected []string
	for _, chrom := range []string{"chr1", "chr2", "chr10"} {
		g, tr, e1, e2 := geneLines(chrom, 100, "g_"+chrom)
		expected = append(expected, g, tr, e1, e2)
	}
	for _, chrom := range []string{"chr1", "chr10", "chr2"} {
		g, tr, e1, e2 := geneLines(chrom, 100, "g_"+chrom)
		input = append(input, g, tr, e1, e2)
	}
	output, result := sortFile(t, "in.gtf", joinLines(input...))
	if output != joinLines(expected...) {
		t.Error("Sort chromosome order failed")
	}
	if result.Chromosomes != 3 {
		t.Error("Sort chromosome count failed")
	}
}

func TestSortDuplicateCDS(t *testing.T) {
	g1, t1, e11, _ := geneLines("chr1", 1000, "g1")
	cdsA := gtfLine("chr1", "CDS", 1010, `gene_id "g1"; transcript_id "g1.1"; exon_number "1";`)
	cdsB := gtfLine("chr1", "CDS", 1020, `gene_id "g1"; transcript_id "g1.1"; exon_number "1";`)
	input := joinLines(g1, t1, e11, cdsA, cdsB)
	output, result := sortFile(t, "in.gtf", input)
	if output != joinLines(g1, t1, e11, cdsB) {
		t.Error("Sort duplicate CDS failed")
	}
	if result.Replaced != 1 {
		t.Error("Sort duplicate CDS count failed")
	}
	output, _ = sortFile(t, "in.gtf", input, WithDuplicatePolicy(layers.Keep))
	if output != joinLines(g1, t1, e11, cdsA, cdsB) {
		t.Error("Sort keep duplicate CDS failed")
	}
}

func TestSortComments(t *testing.T) {
	g1, t1, e11, e12 := geneLines("chr1", 1000, "g1")
	input := joinLines("#!genome-build GRCh38", g1, "#!tail", t1, e11, e12)
	if output, _ := sortFile(t, "in.gtf", input); output != joinLines("#!genome-build GRCh38", "#!tail", g1, t1, e11, e12) {
		t.Error("Sort comments failed")
	}
	if output, _ := sortFile(t, "in.gtf", input, WithoutComments()); output != joinLines(g1, t1, e11, e12) {
		t.Error("Sort without comments failed")
	}
}

func TestSortGFF(t *testing.T) {
	gene := "chr1\ttest\tgene\t100\t900\t.\t+\t.\tID=gene:g1;gene_id=g1"
	transcript := "chr1\ttest\tmRNA\t100\t900\t.\t+\t.\tID=transcript:g1.1;gene_id=g1;transcript_id=g1.1"
	header := "chr1\ttest\ttranscript\t100\t900\t.\t+\t.\tgene_id=g1;transcript_id=g1.1"
	exon := "chr1\ttest\texon\t100\t200\t.\t+\t.\tgene_id=g1;transcript_id=g1.1;exon_number=1"
	output, _ := sortFile(t, "in.gff3", joinLines(exon, transcript, header, gene))
	if output != joinLines(gene, header, exon, transcript) {
		t.Error("Sort GFF failed")
	}
}

func randomAnnotation(r *rand.Rand, genes int) []string {
	chroms := []string{"chr1", "chr2", "chr10", "chrX", "GL000009.2", "chr1_KI270706v1_random"}
	var lines []string
	for i := 0; i < genes; i++ {
		chrom := chroms[r.Intn(len(chroms))]
		start := 1 + r.Intn(1000000)
		gene := fmt.Sprintf("G%v", i)
		lines = append(lines, gtfLine(chrom, "gene", start, fmt.Sprintf(`gene_id "%v";`, gene)))
		transcripts := 1 + r.Intn(3)
		for tx := 0; tx < transcripts; tx++ {
			transcript := fmt.Sprintf("%v.%v", gene, tx)
			lines = append(lines, gtfLine(chrom, "transcript", start, fmt.Sprintf(`gene_id "%v"; transcript_id "%v";`, gene, transcript)))
			exons := 1 + r.Intn(12)
			for exon := 1; exon <= exons; exon++ {
				attributes := fmt.Sprintf(`gene_id "%v"; transcript_id "%v"; exon_number "%v";`, gene, transcript, exon)
				lines = append(lines,
					gtfLine(chrom, "exon", start+exon*100, attributes),
					gtfLine(chrom, "CDS", start+exon*100+10, attributes),
				)
			}
			lines = append(lines, gtfLine(chrom, "UTR", start, fmt.Sprintf(`gene_id "%v"; transcript_id "%v";`, gene, transcript)))
		}
	}
	r.Shuffle(len(lines), func(i, j int) {
		lines[i], lines[j] = lines[j], lines[i]
	})
	return lines
}

func TestSortCompletenessAndContainment(t *testing.T) {
	lines := randomAnnotation(rand.New(rand.NewSource(42)), 500)
	output, result := sortFile(t, "in.gtf", joinLines(lines...))
	sorted := strings.Split(strings.TrimSuffix(output, "\n"), "\n")

	if result.Records != len(lines) || len(sorted) != len(lines) {
		t.Fatal("Sort completeness failed")
	}
	expected := append([]string(nil), lines...)
	actual := append([]string(nil), sorted...)
	sort.Strings(expected)
	sort.Strings(actual)
	for i := range expected {
		if expected[i] != actual[i] {
			t.Fatal("Sort completeness contents failed")
		}
	}

	var chrom, gene, transcript, key string
	start := -1
	for _, line := range sorted {
		record, err := gtf.ParseRecord(line, gtf.GTF)
		if err != nil {
			t.Fatal(err)
		}
		if record.Chrom != chrom {
			if chrom != "" && natord.Compare(chrom, record.Chrom) >= 0 {
				t.Fatal("Sort chromosome order failed")
			}
			if record.Feature != gtf.Gene {
				t.Fatal("Sort chromosome block failed")
			}
			chrom, start = record.Chrom, -1
		}
		switch record.Feature {
		case gtf.Gene:
			if record.Start < start {
				t.Fatal("Sort gene order failed")
			}
			start, gene, transcript = record.Start, record.GeneID, ""
		case gtf.Transcript:
			if record.GeneID != gene {
				t.Fatal("Sort transcript containment failed")
			}
			transcript, key = record.TranscriptID, ""
		default:
			if record.GeneID != gene || record.TranscriptID != transcript {
				t.Fatal("Sort feature containment failed")
			}
			next := record.Feature
			if gtf.IsSubFeature(record.Feature) {
				next = record.SubFeatureKey()
			}
			if key != "" && natord.Compare(key, next) > 0 {
				t.Fatal("Sort feature order failed")
			}
			key = next
		}
	}
}

func TestSortIdempotent(t *testing.T) {
	lines := randomAnnotation(rand.New(rand.NewSource(7)), 200)
	once, _ := sortFile(t, "in.gtf", joinLines(lines...))
	twice, _ := sortFile(t, "in.gtf", once)
	if once != twice {
		t.Error("Sort idempotence failed")
	}
}

func TestSortMappedMatchesSequential(t *testing.T) {
	input := joinLines(randomAnnotation(rand.New(rand.NewSource(3)), 300)...)
	mapped, mappedResult := sortFile(t, "in.gtf", input)
	sequential, sequentialResult := sortFile(t, "in.gtf", input, WithoutMmap())
	if mapped != sequential {
		t.Error("mapped and sequential output differ")
	}
	if sequentialResult.InputMapped || sequentialResult.OutputMapped {
		t.Error("WithoutMmap failed")
	}
	if runtime.GOOS == "linux" && (!mappedResult.InputMapped || !mappedResult.OutputMapped) {
		t.Error("memory mapping failed")
	}
}

func TestSortInPlace(t *testing.T) {
	g1, t1, e11, e12 := geneLines("chr1", 1000, "g1")
	g2, t2, e21, e22 := geneLines("chr2", 500, "g2")
	name := filepath.Join(t.TempDir(), "annotation.gtf")
	if err := os.WriteFile(name, []byte(joinLines(e22, g2, e12, t2, e21, g1, e11, t1)), 0666); err != nil {
		t.Fatal(err)
	}
	result, err := Sort(name, name, 2)
	if err != nil {
		t.Fatal(err)
	}
	if result.InputMapped {
		t.Error("Sort in place mapped its input")
	}
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != joinLines(g1, t1, e11, e12, g2, t2, e21, e22) {
		t.Error("Sort in place failed")
	}
}

func TestSortInputMappingFallback(t *testing.T) {
	saved := mapInput
	defer func() {
		mapInput = saved
	}()
	mapInput = func(*os.File, int) (*mmap.MemoryMap, error) {
		return nil, mmap.ErrUnsupported
	}

	input := joinLines(randomAnnotation(rand.New(rand.NewSource(5)), 100)...)
	output, result := sortFile(t, "in.gtf", input)
	if result.InputMapped {
		t.Error("input mapping fallback mapped")
	}
	sequential, _ := sortFile(t, "in.gtf", input, WithoutMmap())
	if output != sequential {
		t.Error("input mapping fallback output differs")
	}
}

func TestSortCompressed(t *testing.T) {
	g1, t1, e11, e12 := geneLines("chr1", 1000, "g1")
	dir := t.TempDir()
	input := filepath.Join(dir, "in.gtf.gz")
	f, err := os.Create(input)
	if err != nil {
		t.Fatal(err)
	}
	gz := pgzip.NewWriter(f)
	if _, err := io.WriteString(gz, joinLines(e12, t1, g1, e11)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	output := filepath.Join(dir, "out.gtf.gz")
	result, err := Sort(input, output, 2)
	if err != nil {
		t.Fatal(err)
	}
	if result.InputMapped || result.OutputMapped {
		t.Error("Sort compressed mapped")
	}
	out, err := os.Open(output)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	r, err := pgzip.NewReader(out)
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != joinLines(g1, t1, e11, e12) {
		t.Error("Sort compressed failed")
	}
}

func TestSortText(t *testing.T) {
	g1, t1, e11, e12 := geneLines("chr1", 1000, "g1")
	var chunks [][]byte
	sink := Sink(func(p []byte) (int, error) {
		chunks = append(chunks, append([]byte(nil), p...))
		return len(p), nil
	})
	result, err := SortText(joinLines(e12, e11, t1, g1), sink, gtf.GTF, 3)
	if err != nil {
		t.Fatal(err)
	}
	if string(bytes.Join(chunks, nil)) != joinLines(g1, t1, e11, e12) {
		t.Error("SortText failed")
	}
	if result.Input != "[string]" || result.Output != "[callback]" || result.Threads != 3 {
		t.Error("SortText result failed")
	}
}

func TestSortTextSinkError(t *testing.T) {
	g1, t1, e11, _ := geneLines("chr1", 1000, "g1")
	sinkErr := errors.New("callback failed")
	_, err := SortText(joinLines(g1, t1, e11), Sink(func([]byte) (int, error) {
		return 0, sinkErr
	}), gtf.GTF, 1)
	if !errors.Is(err, &Error{Kind: IoError}) || !errors.Is(err, sinkErr) {
		t.Error("SortText sink error failed")
	}
}

func TestSortReader(t *testing.T) {
	g1, t1, e11, e12 := geneLines("chr2", 1000, "g1")
	var buf bytes.Buffer
	result, err := SortReader(strings.NewReader(joinLines(t1, e12, g1, e11)), &buf, gtf.GTF, 2)
	if err != nil {
		t.Fatal(err)
	}
	if buf.String() != joinLines(g1, t1, e11, e12) {
		t.Error("SortReader failed")
	}
	if result.Records != 4 {
		t.Error("SortReader result failed")
	}
}

func TestSortDanglingGene(t *testing.T) {
	g1, _, _, _ := geneLines("chr1", 1000, "g1")
	var buf bytes.Buffer
	_, err := SortText(joinLines(g1), &buf, gtf.GTF, 1)
	var dangling *layers.DanglingGeneError
	if !errors.Is(err, &Error{Kind: ParseError}) || !errors.As(err, &dangling) {
		t.Error("SortText dangling gene failed")
	}

	dir := t.TempDir()
	input := filepath.Join(dir, "in.gtf")
	if err := os.WriteFile(input, []byte(joinLines(g1)), 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := Sort(input, filepath.Join(dir, "out.gtf"), 1); !errors.As(err, &dangling) {
		t.Error("Sort dangling gene failed")
	}
}

func TestValidation(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "in.gtf")
	if err := os.WriteFile(valid, []byte(joinLines(gtfLine("chr1", "gene", 1, `gene_id "g";`))), 0666); err != nil {
		t.Fatal(err)
	}
	empty := filepath.Join(dir, "empty.gtf")
	if err := os.WriteFile(empty, nil, 0666); err != nil {
		t.Fatal(err)
	}
	unknown := filepath.Join(dir, "in.bed")
	if err := os.WriteFile(unknown, []byte("chr1\t1\t2\n"), 0666); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.gtf")

	check := func(name string, err error, kind ErrorKind) {
		if !errors.Is(err, &Error{Kind: kind}) {
			t.Errorf("%v failed: %v", name, err)
		}
	}
	_, err := Sort("", out, 1)
	check("missing input", err, InvalidInput)
	_, err = Sort(filepath.Join(dir, "missing.gtf"), out, 1)
	check("nonexistent input", err, InvalidInput)
	_, err = Sort(empty, out, 1)
	check("empty input", err, InvalidInput)
	_, err = Sort(unknown, out, 1)
	check("unknown input extension", err, InvalidInput)
	_, err = Sort(valid, filepath.Join(dir, "out.txt"), 1)
	check("unknown output extension", err, InvalidOutput)
	_, err = Sort(valid, filepath.Join(dir, "out.gtf.bz2"), 1)
	check("unsupported output compression", err, InvalidOutput)
	_, err = Sort(valid, out, 0)
	check("zero threads", err, InvalidThreads)
	_, err = SortText("", nil, gtf.GTF, 1)
	check("nil sink", err, InvalidParameter)
	_, err = SortText("", Sink(nil), gtf.GTF, 1)
	check("nil Sink", err, InvalidParameter)
	_, err = SortText("", io.Discard, gtf.Separator(':'), 1)
	check("invalid separator", err, InvalidParameter)
	_, err = SortReader(nil, io.Discard, gtf.GTF, 1)
	check("nil reader", err, InvalidParameter)

	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("validation created output")
	}
}

func TestJobResult(t *testing.T) {
	previous := runtime.GOMAXPROCS(0)
	_, result := sortFile(t, "in.gtf", joinLines(randomAnnotation(rand.New(rand.NewSource(1)), 20)...))
	if runtime.GOMAXPROCS(0) != previous {
		t.Error("GOMAXPROCS not restored")
	}
	if result.Threads != 2 || result.ID.String() == "" {
		t.Error("JobResult identity failed")
	}
	if math.IsNaN(result.ParsingSecs) || math.IsNaN(result.IndexingSecs) || math.IsNaN(result.WritingSecs) {
		t.Error("JobResult timings failed")
	}
	if runtime.GOOS == "linux" && (math.IsNaN(result.StartMemMB) || result.EndMemMB < result.StartMemMB) {
		t.Error("JobResult memory failed")
	}
	if !strings.Contains(result.String(), result.ID.String()) {
		t.Error("JobResult String failed")
	}
}

func BenchmarkSortText(b *testing.B) {
	text := joinLines(randomAnnotation(rand.New(rand.NewSource(11)), 5000)...)
	b.SetBytes(int64(len(text)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := SortText(text, io.Discard, gtf.GTF, runtime.NumCPU()); err != nil {
			b.Fatal(err)
		}
	}
}

package countmat

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"

	"github.com/kindlab/rnadiff"
)

// MetaRowPrefix marks the counting tool's summary rows (__no_feature,
// __ambiguous, and friends). These never enter the matrix or the library
// size totals.
const MetaRowPrefix = "__"

// ReadSampleSheet imports sample metadata from a delimited file with a
// header row (sample, file, treatment, individual, batch, sex columns).
func ReadSampleSheet(path string) ([]SampleInfo, error) {
	rc, err := rnadiff.OpenMaybeCompressed(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer rc.Close()

	fileBytes, err := ioutil.ReadAll(rc)
	if err != nil {
		return nil, pfx.Err(err)
	}

	delim := rnadiff.DetectDelimiter(bytes.NewReader(fileBytes))

	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.Comma = delim
		r.LazyQuotes = true
		return r
	})

	records := []*SampleInfo{}
	if err := gocsv.UnmarshalBytes(fileBytes, &records); err != nil {
		return nil, pfx.Err(err)
	}

	out := make([]SampleInfo, 0, len(records))
	for _, rec := range records {
		out = append(out, *rec)
	}

	if len(out) < 1 {
		return nil, pfx.Err(fmt.Errorf("no sample records parsed from %s", path))
	}

	return out, nil
}

// ReadCountFile parses one per-sample count file: two or three delimited
// columns of feature identifier, count, and an optional trailing column that
// is ignored. Comment lines (leading '#') and meta-rows are skipped; the
// meta-row counts are excluded from library sizes by construction.
func ReadCountFile(path string) (map[string]float64, error) {
	rc, err := rnadiff.OpenMaybeCompressed(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer rc.Close()

	fileBytes, err := ioutil.ReadAll(rc)
	if err != nil {
		return nil, pfx.Err(err)
	}

	counts := make(map[string]float64)

	for lineNum, line := range strings.Split(string(fileBytes), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields) > 3 {
			return nil, pfx.Err(fmt.Errorf("%s line %d: expected 2 or 3 columns, found %d", path, lineNum+1, len(fields)))
		}

		if strings.HasPrefix(fields[0], MetaRowPrefix) {
			continue
		}

		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || value < 0 {
			return nil, pfx.Err(fmt.Errorf("%s line %d: cannot parse %q as a non-negative count", path, lineNum+1, fields[1]))
		}

		if _, exists := counts[fields[0]]; exists {
			return nil, pfx.Err(fmt.Errorf("%s line %d: duplicate feature identifier %q", path, lineNum+1, fields[0]))
		}

		counts[fields[0]] = value
	}

	if len(counts) == 0 {
		return nil, pfx.Err(fmt.Errorf("%s: no count rows parsed", path))
	}

	return counts, nil
}

// Build reads one count file per sample record and assembles the count
// matrix. The number of sample records must equal the number of count files;
// anything else halts the run. Genes are the union over all files, with
// absent cells set to zero so the matrix stays fully populated.
func Build(files []string, samples []SampleInfo) (*Matrix, error) {
	if len(files) != len(samples) {
		return nil, pfx.Err(fmt.Errorf("%d count files but %d sample metadata records", len(files), len(samples)))
	}

	perSample := make([]map[string]float64, len(files))
	geneSet := make(map[string]bool)
	for i, path := range files {
		log.Printf("Reading counts for sample %s from %s\n", samples[i].Sample, path)

		counts, err := ReadCountFile(path)
		if err != nil {
			return nil, err
		}
		perSample[i] = counts
		for id := range counts {
			geneSet[id] = true
		}
	}

	genes := make([]string, 0, len(geneSet))
	for id := range geneSet {
		genes = append(genes, id)
	}
	sort.Strings(genes)

	m := &Matrix{
		GeneIDs:  genes,
		Samples:  samples,
		Counts:   make([][]float64, len(genes)),
		LibSizes: make([]float64, len(samples)),
	}
	for i, id := range genes {
		row := make([]float64, len(samples))
		for j := range samples {
			row[j] = perSample[j][id]
			m.LibSizes[j] += row[j]
		}
		m.Counts[i] = row
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return m, nil
}

// Package report turns fitted results into the persisted artifacts of a
// run: CSV tables, PNG plots, and a rendered summary document.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"

	"github.com/kindlab/rnadiff/geneset"
	"github.com/kindlab/rnadiff/nbglm"
)

// WriteTopGenes persists the n most significant rows (by raw p-value) as
// CSV. n <= 0 writes every row.
func WriteTopGenes(path string, results []nbglm.Result, n int) error {
	sorted := append([]nbglm.Result(nil), results...)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].PValue < sorted[b].PValue })

	if n > 0 && n < len(sorted) {
		sorted = sorted[:n]
	}

	return writeCSV(path, &sorted)
}

// WriteSignificantORA persists the over-representation rows at or below the
// FDR cutoff.
func WriteSignificantORA(path string, results []geneset.ORAResult, fdrCutoff float64) error {
	var keep []geneset.ORAResult
	for _, r := range results {
		if r.FDR <= fdrCutoff {
			keep = append(keep, r)
		}
	}
	return writeCSV(path, &keep)
}

// WriteSignificantCompetitive persists the competitive enrichment rows at or
// below the FDR cutoff.
func WriteSignificantCompetitive(path string, results []geneset.CameraResult, fdrCutoff float64) error {
	var keep []geneset.CameraResult
	for _, r := range results {
		if r.FDR <= fdrCutoff {
			keep = append(keep, r)
		}
	}
	return writeCSV(path, &keep)
}

func writeCSV(path string, rows interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(rows, f); err != nil {
		return pfx.Err(err)
	}

	return nil
}

// PrintLogFCHistogram draws a terminal histogram of the log2 fold changes,
// for the run's console summary.
func PrintLogFCHistogram(w io.Writer, results []nbglm.Result) error {
	vals := make([]float64, 0, len(results))
	for _, r := range results {
		vals = append(vals, r.LogFC)
	}

	hist := histogram.Hist(25, vals)
	return histogram.Fprint(w, hist, histogram.Linear(40))
}

// PrintSummary writes the decide-tests classification counts.
func PrintSummary(w io.Writer, label string, summary nbglm.Summary) {
	fmt.Fprintf(w, "%s\tDown\tNotSig\tUp\n", label)
	fmt.Fprintf(w, "genes\t%d\t%d\t%d\n", summary.Down, summary.NotSig, summary.Up)
}

// Package countmat builds and manipulates the gene-by-sample read count
// matrix at the head of the differential expression pipeline.
package countmat

import (
	"fmt"

	"github.com/carbocation/pfx"
)

// SampleInfo carries the experimental metadata for one sample column. One
// record per column, in column order.
type SampleInfo struct {
	Sample     string `csv:"sample"`
	File       string `csv:"file"`
	Treatment  string `csv:"treatment"`
	Individual string `csv:"individual"`
	Batch      string `csv:"batch"`
	Sex        string `csv:"sex"`
}

// Matrix is a rectangular, fully populated gene-by-sample table of
// non-negative read counts. Row order follows GeneIDs, column order follows
// Samples.
type Matrix struct {
	GeneIDs []string
	Samples []SampleInfo
	Counts  [][]float64

	// LibSizes are the per-sample count totals at ingestion time, excluding
	// the counter's meta-rows. They are deliberately not recomputed when
	// rows are dropped by filtering: normalization computes its own totals
	// from whatever matrix it is handed.
	LibSizes []float64
}

// NGenes returns the number of rows.
func (m *Matrix) NGenes() int { return len(m.GeneIDs) }

// NSamples returns the number of columns.
func (m *Matrix) NSamples() int { return len(m.Samples) }

// Column returns the counts for sample column j.
func (m *Matrix) Column(j int) []float64 {
	out := make([]float64, m.NGenes())
	for i := range m.Counts {
		out[i] = m.Counts[i][j]
	}
	return out
}

// ColumnSums totals each sample column over the current rows. This is what
// normalization uses; it is distinct from LibSizes, which are frozen at
// ingestion.
func (m *Matrix) ColumnSums() []float64 {
	out := make([]float64, m.NSamples())
	for _, row := range m.Counts {
		for j, v := range row {
			out[j] += v
		}
	}
	return out
}

// SubsetRows returns a new Matrix holding only the rows for which keep is
// true. Sample metadata and ingestion-time library sizes carry over
// unchanged.
func (m *Matrix) SubsetRows(keep []bool) (*Matrix, error) {
	if len(keep) != m.NGenes() {
		return nil, pfx.Err(fmt.Errorf("keep vector has %d entries but the matrix has %d rows", len(keep), m.NGenes()))
	}

	out := &Matrix{
		Samples:  m.Samples,
		LibSizes: m.LibSizes,
	}
	for i, k := range keep {
		if !k {
			continue
		}
		out.GeneIDs = append(out.GeneIDs, m.GeneIDs[i])
		out.Counts = append(out.Counts, m.Counts[i])
	}

	return out, nil
}

// TreatmentLevels returns the distinct treatment labels in first-seen column
// order.
func (m *Matrix) TreatmentLevels() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range m.Samples {
		if !seen[s.Treatment] {
			seen[s.Treatment] = true
			out = append(out, s.Treatment)
		}
	}
	return out
}

// MinGroupSize returns the size of the smallest treatment group.
func (m *Matrix) MinGroupSize() int {
	counts := make(map[string]int)
	for _, s := range m.Samples {
		counts[s.Treatment]++
	}

	min := 0
	for _, n := range counts {
		if min == 0 || n < min {
			min = n
		}
	}
	return min
}

// Validate enforces the structural invariants: unique gene and sample
// identifiers, rectangular rows, exactly two treatment levels, and one
// individual label per sample.
func (m *Matrix) Validate() error {
	seenGene := make(map[string]bool, m.NGenes())
	for _, id := range m.GeneIDs {
		if seenGene[id] {
			return pfx.Err(fmt.Errorf("duplicate gene identifier %q", id))
		}
		seenGene[id] = true
	}

	seenSample := make(map[string]bool, m.NSamples())
	for _, s := range m.Samples {
		if seenSample[s.Sample] {
			return pfx.Err(fmt.Errorf("duplicate sample name %q", s.Sample))
		}
		seenSample[s.Sample] = true

		if s.Treatment == "" || s.Individual == "" {
			return pfx.Err(fmt.Errorf("sample %q is missing a treatment or individual label", s.Sample))
		}
	}

	for i, row := range m.Counts {
		if len(row) != m.NSamples() {
			return pfx.Err(fmt.Errorf("row %d has %d cells but there are %d samples", i, len(row), m.NSamples()))
		}
		for j, v := range row {
			if v < 0 {
				return pfx.Err(fmt.Errorf("negative count at gene %s sample %s", m.GeneIDs[i], m.Samples[j].Sample))
			}
		}
	}

	if levels := m.TreatmentLevels(); len(levels) != 2 {
		return pfx.Err(fmt.Errorf("expected exactly 2 treatment levels, found %d (%v)", len(levels), levels))
	}

	return nil
}

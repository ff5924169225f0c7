// Package filterexpr removes genes whose expression is too low to support
// inference, using a library-size-aware counts-per-million cutoff applied
// per treatment group.
package filterexpr

import (
	"fmt"

	"github.com/carbocation/pfx"
	"github.com/montanaflynn/stats"

	"github.com/kindlab/rnadiff/countmat"
)

type Options struct {
	// MinCount is the minimum count a gene should reach in a sample with a
	// median-sized library for that sample to count toward keeping it.
	MinCount float64

	// MinTotalCount is the baseline minimum count summed over all samples.
	// The effective floor is rescaled by the ratio of the mean to the median
	// library size, so it adapts to sequencing depth.
	MinTotalCount float64
}

// DefaultOptions mirrors the conventional min.count=10, min.total.count=15
// settings.
func DefaultOptions() Options {
	return Options{MinCount: 10, MinTotalCount: 15}
}

// Keep returns one flag per gene: true when the gene's CPM clears the
// depth-derived cutoff in at least as many samples as the smallest treatment
// group holds, and its total count clears the adaptive floor. All-zero rows
// never pass.
func Keep(m *countmat.Matrix, opts Options) ([]bool, error) {
	if m.NSamples() == 0 || m.NGenes() == 0 {
		return nil, pfx.Err(fmt.Errorf("cannot filter an empty matrix"))
	}

	medianLib, err := stats.Median(m.LibSizes)
	if err != nil {
		return nil, pfx.Err(err)
	}
	meanLib, err := stats.Mean(m.LibSizes)
	if err != nil {
		return nil, pfx.Err(err)
	}
	if medianLib <= 0 {
		return nil, pfx.Err(fmt.Errorf("median library size is zero; at least half of the samples are empty"))
	}

	// A count of MinCount in a median-sized library, expressed on the CPM
	// scale so the same bar applies to deep and shallow samples alike.
	cpmCutoff := opts.MinCount / medianLib * 1e6

	// Total-count floor rescaled by depth.
	totalCutoff := opts.MinTotalCount * meanLib / medianLib

	// A gene must clear the CPM bar in at least as many samples as the
	// smallest group holds. Very large groups are damped so a handful of
	// expressing samples still suffices.
	minSamples := float64(m.MinGroupSize())
	if minSamples > 10 {
		minSamples = 10 + (minSamples-10)*0.7
	}

	const tol = 1e-14

	cpm := m.CPM(m.LibSizes)
	keep := make([]bool, m.NGenes())
	for i, row := range m.Counts {
		passing := 0
		total := 0.0
		for j, v := range row {
			total += v
			if cpm[i][j] >= cpmCutoff {
				passing++
			}
		}
		keep[i] = float64(passing) >= minSamples-tol && total >= totalCutoff-tol
	}

	return keep, nil
}

// Apply filters the matrix in one step. The returned matrix retains the
// ingestion-time library sizes: totals are intentionally not recomputed
// after the drop, because normalization immediately downstream derives its
// own totals from the surviving rows.
func Apply(m *countmat.Matrix, opts Options) (*countmat.Matrix, error) {
	keep, err := Keep(m, opts)
	if err != nil {
		return nil, err
	}

	out, err := m.SubsetRows(keep)
	if err != nil {
		return nil, err
	}

	if out.NGenes() == 0 {
		return nil, pfx.Err(fmt.Errorf("expression filtering removed every gene"))
	}

	return out, nil
}

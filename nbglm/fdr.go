package nbglm

import "sort"

// BHAdjust converts raw p-values into Benjamini-Hochberg false discovery
// rates, preserving input order.
func BHAdjust(pvals []float64) []float64 {
	n := len(pvals)
	if n == 0 {
		return nil
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return pvals[idx[a]] < pvals[idx[b]] })

	out := make([]float64, n)
	running := 1.0
	for k := n - 1; k >= 0; k-- {
		i := idx[k]
		q := pvals[i] * float64(n) / float64(k+1)
		if q < running {
			running = q
		}
		out[i] = running
	}

	return out
}

// Status classifies one gene's test outcome.
type Status int

const (
	NotSig Status = iota
	Up
	Down
)

func (s Status) String() string {
	switch s {
	case Up:
		return "Up"
	case Down:
		return "Down"
	}
	return "NotSig"
}

// Summary counts the classification outcomes over all tested genes.
type Summary struct {
	Up     int
	Down   int
	NotSig int
}

// Tested returns the total number of genes behind the summary.
func (s Summary) Tested() int { return s.Up + s.Down + s.NotSig }

// DecideTests classifies every result at the given FDR cutoff by the sign
// of its fold change.
func DecideTests(results []Result, fdrCutoff float64) ([]Status, Summary) {
	statuses := make([]Status, len(results))
	var summary Summary

	for i, r := range results {
		switch {
		case r.FDR <= fdrCutoff && r.LogFC > 0:
			statuses[i] = Up
			summary.Up++
		case r.FDR <= fdrCutoff && r.LogFC < 0:
			statuses[i] = Down
			summary.Down++
		default:
			statuses[i] = NotSig
			summary.NotSig++
		}
	}

	return statuses, summary
}

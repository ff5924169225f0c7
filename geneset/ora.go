package geneset

import (
	"sort"

	fet "github.com/glycerine/golang-fisher-exact"
	"github.com/tokenme/probab/dst"

	"github.com/kindlab/rnadiff/nbglm"
)

// ORAResult is one category row from the over-representation test.
type ORAResult struct {
	Set       string  `csv:"set"`
	NGenes    int     `csv:"n_genes"`
	NSig      int     `csv:"n_significant"`
	Expected  float64 `csv:"expected"`
	PValue    float64 `csv:"p_value"`
	FDR       float64 `csv:"fdr"`
	Direction string  `csv:"direction"`
}

// chiSquareMinExpected switches the 2x2 test from Fisher's exact test to the
// chi-square approximation once every expected cell is comfortably large.
const chiSquareMinExpected = 25

// OverRepresentation compares the significant gene identifiers against the
// full tested universe, one category at a time. Identifiers outside the
// universe are ignored; a category with no member in the universe produces
// no result row. Rows come back sorted by p-value with BH-adjusted FDRs.
func OverRepresentation(sig, universe []int, coll Collection) []ORAResult {
	inUniverse := make(map[int]bool, len(universe))
	for _, id := range universe {
		inUniverse[id] = true
	}
	inSig := make(map[int]bool, len(sig))
	for _, id := range sig {
		if inUniverse[id] {
			inSig[id] = true
		}
	}

	nUniverse := len(inUniverse)
	nSig := len(inSig)

	names := make([]string, 0, len(coll))
	for name := range coll {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []ORAResult
	var pvals []float64
	for _, name := range names {
		seen := make(map[int]bool)
		m, k := 0, 0
		for _, id := range coll[name] {
			if seen[id] || !inUniverse[id] {
				continue
			}
			seen[id] = true
			m++
			if inSig[id] {
				k++
			}
		}
		if m == 0 {
			// Nothing in this category was tested at all.
			continue
		}

		expected := float64(m) * float64(nSig) / float64(nUniverse)

		p := enrichmentP(k, nSig-k, m-k, nUniverse-nSig-(m-k), expected)

		direction := "Over"
		if float64(k) < expected {
			direction = "Under"
		}

		out = append(out, ORAResult{
			Set:       name,
			NGenes:    m,
			NSig:      k,
			Expected:  expected,
			PValue:    p,
			Direction: direction,
		})
		pvals = append(pvals, p)
	}

	for i, q := range nbglm.BHAdjust(pvals) {
		out[i].FDR = q
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].PValue < out[b].PValue })

	return out
}

// enrichmentP is the one-sided (over-representation) p-value for the 2x2
// table, exact for small tables and chi-square approximated for large ones.
func enrichmentP(n11, n12, n21, n22 int, expected float64) float64 {
	total := float64(n11 + n12 + n21 + n22)

	minExpected := expected
	for _, e := range []float64{
		float64(n11+n12) * float64(n12+n22) / total,
		float64(n21+n22) * float64(n11+n21) / total,
		float64(n21+n22) * float64(n12+n22) / total,
	} {
		if e < minExpected {
			minExpected = e
		}
	}

	if minExpected >= chiSquareMinExpected {
		return chiSquareRightTail(n11, n12, n21, n22, expected)
	}

	_, _, rightp, _ := fet.FisherExactTest(n11, n12, n21, n22)
	return rightp
}

// chiSquareRightTail folds the two-sided Yates-corrected chi-square p-value
// into a one-sided over-representation p-value.
func chiSquareRightTail(n11, n12, n21, n22 int, expected float64) float64 {
	total := float64(n11 + n12 + n21 + n22)

	den := float64(n11+n12) * float64(n21+n22) * float64(n11+n21) * float64(n12+n22)
	if den == 0 {
		return 1
	}

	// Yates continuity correction, floored at zero so it can only shrink
	// the statistic.
	ad := float64(n11)*float64(n22) - float64(n12)*float64(n21)
	d := abs(ad) - total/2
	if d < 0 {
		d = 0
	}

	chi2 := total * d * d / den
	twoSided := 1 - dst.ChiSquareCDF(1)(chi2)

	if float64(n11) <= expected {
		// Depleted, not enriched: the one-sided p is at least one half.
		return 1 - twoSided/2
	}

	return twoSided / 2
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

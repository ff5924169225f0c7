// Package tmm computes trimmed-mean-of-M-values scale factors: one factor
// per sample such that the geometric mean over all factors is 1.
package tmm

import (
	"fmt"
	"math"
	"sort"

	"github.com/carbocation/pfx"
	"gonum.org/v1/gonum/stat"

	"github.com/kindlab/rnadiff/countmat"
)

const (
	// Symmetric trim fractions on the log-ratios (M) and the average log
	// intensities (A).
	logRatioTrim  = 0.3
	intensityTrim = 0.05

	// Fewer shared positive genes than this between a sample and the
	// reference means the pair cannot support a trimmed mean at all.
	minSharedGenes = 10
)

// NormFactors computes one TMM scale factor per sample column. Totals are
// derived fresh from the matrix it is handed, superseding any earlier
// library size bookkeeping. A sample with an all-zero column, or with
// near-zero overlap with the reference sample, is an error rather than a
// silent NaN or Inf factor.
func NormFactors(m *countmat.Matrix) ([]float64, error) {
	libs := m.ColumnSums()
	for j, lib := range libs {
		if lib <= 0 {
			return nil, pfx.Err(fmt.Errorf("sample %s has an all-zero count column", m.Samples[j].Sample))
		}
	}

	ref := referenceColumn(m, libs)

	factors := make([]float64, m.NSamples())
	refCol := m.Column(ref)
	for j := range factors {
		if j == ref {
			factors[j] = 1
			continue
		}

		f, err := pairFactor(m.Column(j), refCol, libs[j], libs[ref])
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("sample %s vs reference %s: %w", m.Samples[j].Sample, m.Samples[ref].Sample, err))
		}
		factors[j] = f
	}

	// Rescale so the factors multiply to 1.
	logSum := 0.0
	for _, f := range factors {
		logSum += math.Log(f)
	}
	geoMean := math.Exp(logSum / float64(len(factors)))
	for j := range factors {
		factors[j] /= geoMean
	}

	return factors, nil
}

// EffectiveLibSizes rescales the column totals by the norm factors. These
// are the totals the model offsets are built from.
func EffectiveLibSizes(libs, factors []float64) []float64 {
	out := make([]float64, len(libs))
	for j := range libs {
		out[j] = libs[j] * factors[j]
	}
	return out
}

// referenceColumn picks the sample whose CPM upper quartile sits closest to
// the mean upper quartile across samples.
func referenceColumn(m *countmat.Matrix, libs []float64) int {
	f75 := make([]float64, m.NSamples())
	for j := range f75 {
		col := make([]float64, 0, m.NGenes())
		for i := range m.Counts {
			col = append(col, m.Counts[i][j]/libs[j])
		}
		sort.Float64s(col)
		f75[j] = stat.Quantile(0.75, stat.LinInterp, col, nil)
	}

	mean := stat.Mean(f75, nil)

	ref := 0
	best := math.Inf(1)
	for j, q := range f75 {
		if d := math.Abs(q - mean); d < best {
			best = d
			ref = j
		}
	}
	return ref
}

// pairFactor computes the TMM factor of one observed column against the
// reference column.
func pairFactor(obs, ref []float64, libObs, libRef float64) (float64, error) {
	var mVals, aVals, weights []float64
	for i := range obs {
		if obs[i] <= 0 || ref[i] <= 0 {
			continue
		}

		pObs := obs[i] / libObs
		pRef := ref[i] / libRef

		mVals = append(mVals, math.Log2(pObs/pRef))
		aVals = append(aVals, 0.5*math.Log2(pObs*pRef))

		// Precision weight: inverse of the asymptotic variance of M under
		// binomial sampling.
		v := (libObs-obs[i])/(libObs*obs[i]) + (libRef-ref[i])/(libRef*ref[i])
		weights = append(weights, 1/v)
	}

	n := len(mVals)
	if n < minSharedGenes {
		return 0, fmt.Errorf("only %d genes positive in both samples; too few to normalize", n)
	}

	maxAbsM := 0.0
	for _, v := range mVals {
		if a := math.Abs(v); a > maxAbsM {
			maxAbsM = a
		}
	}
	if maxAbsM < 1e-6 {
		return 1, nil
	}

	mRank := ranks(mVals)
	aRank := ranks(aVals)

	loM := math.Floor(float64(n)*logRatioTrim) + 1
	hiM := float64(n) + 1 - loM
	loA := math.Floor(float64(n)*intensityTrim) + 1
	hiA := float64(n) + 1 - loA

	num, den := 0.0, 0.0
	for k := 0; k < n; k++ {
		if mRank[k] < loM || mRank[k] > hiM || aRank[k] < loA || aRank[k] > hiA {
			continue
		}
		num += mVals[k] * weights[k]
		den += weights[k]
	}

	if den == 0 {
		return 0, fmt.Errorf("trimming removed every usable gene")
	}

	f := math.Exp2(num / den)
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, fmt.Errorf("degenerate scale factor %v", f)
	}

	return f, nil
}

// ranks returns 1-based ordinal ranks, ties broken by original position.
func ranks(vals []float64) []float64 {
	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return vals[idx[a]] < vals[idx[b]] })

	out := make([]float64, len(vals))
	for r, i := range idx {
		out[i] = float64(r + 1)
	}
	return out
}

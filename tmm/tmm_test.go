package tmm

import (
	"math"
	"testing"

	"github.com/kindlab/rnadiff/countmat"
)

func matrixFor(counts [][]float64) *countmat.Matrix {
	nSamples := len(counts[0])
	samples := make([]countmat.SampleInfo, nSamples)
	for j := range samples {
		samples[j] = countmat.SampleInfo{
			Sample:     "s" + string(rune('1'+j)),
			Treatment:  []string{"control", "treated"}[j%2],
			Individual: "i" + string(rune('1'+j/2)),
		}
	}

	genes := make([]string, len(counts))
	for i := range genes {
		genes[i] = "g" + string(rune('A'+i%26)) + string(rune('a'+i/26))
	}

	m := &countmat.Matrix{GeneIDs: genes, Samples: samples, Counts: counts}
	m.LibSizes = m.ColumnSums()
	return m
}

// A deterministic 30-gene, 4-sample count table with mild between-sample
// depth differences.
func exampleCounts() [][]float64 {
	counts := make([][]float64, 30)
	for i := range counts {
		base := float64(5 + 13*i%97 + i*i%41)
		counts[i] = []float64{
			math.Floor(base * 1.0),
			math.Floor(base * 1.6),
			math.Floor(base*0.8) + float64(i%3),
			math.Floor(base*2.1) + float64(i%5),
		}
	}
	return counts
}

func TestNormFactorsGeometricMeanIsOne(t *testing.T) {
	factors, err := NormFactors(matrixFor(exampleCounts()))
	if err != nil {
		t.Fatal(err)
	}

	logSum := 0.0
	for _, f := range factors {
		if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			t.Fatalf("degenerate factor %v", f)
		}
		logSum += math.Log(f)
	}

	if geoMean := math.Exp(logSum / float64(len(factors))); math.Abs(geoMean-1) > 1e-12 {
		t.Fatalf("geometric mean of factors is %v, want 1", geoMean)
	}
}

func TestNormFactorsScaleInvariant(t *testing.T) {
	base := exampleCounts()

	scaled := make([][]float64, len(base))
	for i, row := range base {
		scaled[i] = make([]float64, len(row))
		for j, v := range row {
			scaled[i][j] = v * 4
		}
	}

	f1, err := NormFactors(matrixFor(base))
	if err != nil {
		t.Fatal(err)
	}
	f2, err := NormFactors(matrixFor(scaled))
	if err != nil {
		t.Fatal(err)
	}

	for j := range f1 {
		if math.Abs(f1[j]-f2[j]) > 1e-9 {
			t.Fatalf("factor %d changed under uniform scaling: %v vs %v", j, f1[j], f2[j])
		}
	}
}

func TestNormFactorsEqualColumnsAreUnity(t *testing.T) {
	counts := make([][]float64, 25)
	for i := range counts {
		v := float64(10 + i*7%83)
		counts[i] = []float64{v, v, v, v}
	}

	factors, err := NormFactors(matrixFor(counts))
	if err != nil {
		t.Fatal(err)
	}

	for _, f := range factors {
		if math.Abs(f-1) > 1e-9 {
			t.Fatalf("identical columns should yield unit factors, got %v", factors)
		}
	}
}

func TestPairFactorPrecisionWeightedTruth(t *testing.T) {
	// Ten genes shared between the two columns, equal library sizes of
	// 1000, constant reference counts of 80. With n=10 the M trim keeps
	// ranks 4 through 7 and the A trim keeps everything, so the kept
	// genes are the four with observed counts 60, 80, 100, and 120.
	// The factor is their inverse-variance weighted mean log-ratio,
	// worked out by hand with w = 1/((L-o)/(L*o) + (L-r)/(L*r)):
	//
	//   w        = 36.80982, 43.47826, 48.78049, 53.09735
	//   M        = -0.41504,  0,        0.32193,  0.58496
	//   mean M   = 0.1728441
	//   factor   = 2^0.1728441 = 1.1272787
	//
	// Weighting by the variance instead of its inverse gives 1.0503.
	obs := []float64{10, 20, 40, 60, 80, 100, 120, 160, 320, 640}
	ref := make([]float64, len(obs))
	for i := range ref {
		ref[i] = 80
	}

	got, err := pairFactor(obs, ref, 1000, 1000)
	if err != nil {
		t.Fatal(err)
	}

	const want = 1.1272787
	if math.Abs(got-want) > 5e-4 {
		t.Fatalf("got factor %v, want %v", got, want)
	}
}

func TestNormFactorsAllZeroColumn(t *testing.T) {
	counts := make([][]float64, 20)
	for i := range counts {
		v := float64(10 + i)
		counts[i] = []float64{v, v, v, 0}
	}

	if _, err := NormFactors(matrixFor(counts)); err == nil {
		t.Fatal("expected an error for an all-zero sample column")
	}
}

func TestNormFactorsNearZeroOverlap(t *testing.T) {
	// Two samples with disjoint support: no gene is positive in both.
	counts := make([][]float64, 20)
	for i := range counts {
		if i%2 == 0 {
			counts[i] = []float64{100, 0}
		} else {
			counts[i] = []float64{0, 100}
		}
	}

	samples := []countmat.SampleInfo{
		{Sample: "s1", Treatment: "control", Individual: "i1"},
		{Sample: "s2", Treatment: "treated", Individual: "i1"},
	}
	genes := make([]string, len(counts))
	for i := range genes {
		genes[i] = "g" + string(rune('A'+i))
	}
	m := &countmat.Matrix{GeneIDs: genes, Samples: samples, Counts: counts}
	m.LibSizes = m.ColumnSums()

	if _, err := NormFactors(m); err == nil {
		t.Fatal("expected an error when a sample shares no positive genes with the reference")
	}
}

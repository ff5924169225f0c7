package nbglm

import (
	"testing"

	"github.com/kindlab/rnadiff/countmat"
)

func pairedSamples(nPairs int) []countmat.SampleInfo {
	out := make([]countmat.SampleInfo, 0, 2*nPairs)
	for i := 0; i < nPairs; i++ {
		ind := "ind" + string(rune('a'+i))
		out = append(out,
			countmat.SampleInfo{Sample: ind + "_c", Treatment: "control", Individual: ind},
			countmat.SampleInfo{Sample: ind + "_t", Treatment: "treated", Individual: ind},
		)
	}
	return out
}

func TestBuildDesignPaired(t *testing.T) {
	d, err := BuildDesign(pairedSamples(7))
	if err != nil {
		t.Fatal(err)
	}

	rows, cols := d.X.Dims()
	if rows != 14 || cols != 8 {
		t.Fatalf("design dims %dx%d, want 14x8", rows, cols)
	}
	if d.TreatCol != cols-1 {
		t.Fatalf("treatment column at %d, want last", d.TreatCol)
	}
	if d.TreatmentLevel != "treated" || d.ReferenceLevel != "control" {
		t.Fatalf("levels %q vs %q", d.TreatmentLevel, d.ReferenceLevel)
	}
	if d.ResidualDF() != 6 {
		t.Fatalf("residual df %v, want 6", d.ResidualDF())
	}

	// Each sample row carries the intercept plus at most two indicators.
	for i := 0; i < rows; i++ {
		if d.X.At(i, 0) != 1 {
			t.Fatal("intercept column must be all ones")
		}
	}

	nullRows, nullCols := d.Null().Dims()
	if nullRows != 14 || nullCols != 7 {
		t.Fatalf("null design dims %dx%d, want 14x7", nullRows, nullCols)
	}
}

func TestBuildDesignConfounded(t *testing.T) {
	// Treatment perfectly aligned with individual: the treatment column
	// duplicates an individual indicator.
	samples := []countmat.SampleInfo{
		{Sample: "s1", Treatment: "control", Individual: "i1"},
		{Sample: "s2", Treatment: "control", Individual: "i1"},
		{Sample: "s3", Treatment: "control", Individual: "i1"},
		{Sample: "s4", Treatment: "treated", Individual: "i2"},
		{Sample: "s5", Treatment: "treated", Individual: "i2"},
		{Sample: "s6", Treatment: "treated", Individual: "i2"},
	}

	if _, err := BuildDesign(samples); err == nil {
		t.Fatal("expected a rank error for a treatment-confounded design")
	}
}

func TestBuildDesignRequiresTwoTreatmentLevels(t *testing.T) {
	samples := pairedSamples(3)
	for i := range samples {
		samples[i].Treatment = "control"
	}

	if _, err := BuildDesign(samples); err == nil {
		t.Fatal("expected an error with a single treatment level")
	}
}

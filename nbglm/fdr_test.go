package nbglm

import (
	"math"
	"testing"
)

// Truth values from R's p.adjust(..., method="BH").
func TestBHAdjust(t *testing.T) {
	for _, tc := range []struct {
		p    []float64
		want []float64
	}{
		{
			p:    []float64{0.01, 0.02, 0.03, 0.04},
			want: []float64{0.04, 0.04, 0.04, 0.04},
		},
		{
			p:    []float64{0.005, 0.1, 0.5},
			want: []float64{0.015, 0.15, 0.5},
		},
		{
			p:    []float64{0.5, 0.005, 0.1},
			want: []float64{0.5, 0.015, 0.15},
		},
		{
			p:    []float64{1},
			want: []float64{1},
		},
	} {
		got := BHAdjust(tc.p)
		for i := range tc.want {
			if math.Abs(got[i]-tc.want[i]) > 1e-12 {
				t.Fatalf("BHAdjust(%v) = %v, want %v", tc.p, got, tc.want)
			}
		}
	}
}

func TestDecideTests(t *testing.T) {
	results := []Result{
		{GeneID: "up", LogFC: 2, FDR: 0.001},
		{GeneID: "down", LogFC: -1.5, FDR: 0.01},
		{GeneID: "flat", LogFC: 0.2, FDR: 0.8},
		{GeneID: "bigButUncertain", LogFC: 3, FDR: 0.2},
	}

	statuses, summary := DecideTests(results, 0.05)

	if summary.Up != 1 || summary.Down != 1 || summary.NotSig != 2 {
		t.Fatalf("summary %+v", summary)
	}
	if summary.Tested() != len(results) {
		t.Fatalf("tested %d, want %d", summary.Tested(), len(results))
	}
	if statuses[0] != Up || statuses[1] != Down || statuses[2] != NotSig || statuses[3] != NotSig {
		t.Fatalf("statuses %v", statuses)
	}
}

package nbglm

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestFitNBInterceptOnly(t *testing.T) {
	// With an intercept-only design and no offset, the fitted mean is the
	// sample mean regardless of dispersion.
	y := []float64{4, 6, 8, 10}
	x := mat.NewDense(4, 1, []float64{1, 1, 1, 1})
	offset := make([]float64, 4)

	for _, disp := range []float64{0, 0.05, 0.5} {
		fit, err := fitNB(y, x, offset, disp)
		if err != nil {
			t.Fatal(err)
		}
		if !fit.Converged {
			t.Fatalf("dispersion %v: IRLS did not converge", disp)
		}
		if got, want := fit.Coef[0], math.Log(7); math.Abs(got-want) > 1e-6 {
			t.Fatalf("dispersion %v: intercept %v, want %v", disp, got, want)
		}
	}
}

func TestFitNBOffsetShiftsIntercept(t *testing.T) {
	// Doubling every library size (adding log 2 to the offsets) must lower
	// the intercept by exactly log 2.
	y := []float64{40, 60, 80, 100}
	x := mat.NewDense(4, 1, []float64{1, 1, 1, 1})

	zero := make([]float64, 4)
	shifted := []float64{math.Log(2), math.Log(2), math.Log(2), math.Log(2)}

	f0, err := fitNB(y, x, zero, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	f1, err := fitNB(y, x, shifted, 0.1)
	if err != nil {
		t.Fatal(err)
	}

	if diff := f0.Coef[0] - f1.Coef[0]; math.Abs(diff-math.Log(2)) > 1e-6 {
		t.Fatalf("intercept shift %v, want %v", diff, math.Log(2))
	}
}

func TestNBUnitDeviance(t *testing.T) {
	// A perfect fit has zero deviance.
	if d := nbUnitDeviance(5, 5, 0.1); math.Abs(d) > 1e-12 {
		t.Fatalf("deviance at y==mu: %v", d)
	}

	// Misfit deviance is positive in both directions.
	if d := nbUnitDeviance(10, 5, 0.1); d <= 0 {
		t.Fatalf("deviance for y>mu should be positive, got %v", d)
	}
	if d := nbUnitDeviance(2, 5, 0.1); d <= 0 {
		t.Fatalf("deviance for y<mu should be positive, got %v", d)
	}

	// Zero observation against a positive mean.
	want := (1 / 0.1) * math.Log(1+0.1*5.0)
	if d := nbUnitDeviance(0, 5, 0.1); math.Abs(d-want) > 1e-12 {
		t.Fatalf("zero-count deviance %v, want %v", d, want)
	}
}

func TestTrigamma(t *testing.T) {
	for _, tc := range []struct {
		x    float64
		want float64
	}{
		{1, math.Pi * math.Pi / 6},
		{0.5, math.Pi * math.Pi / 2},
		{2, math.Pi*math.Pi/6 - 1},
	} {
		if got := trigamma(tc.x); math.Abs(got-tc.want) > 1e-8 {
			t.Fatalf("trigamma(%v) = %v, want %v", tc.x, got, tc.want)
		}
	}
}

func TestTrigammaInverseRoundTrip(t *testing.T) {
	for _, y := range []float64{0.3, 1, 2.5, 8} {
		x := trigamma(y)
		if got := trigammaInverse(x); math.Abs(got-y) > 1e-4 {
			t.Fatalf("trigammaInverse(trigamma(%v)) = %v", y, got)
		}
	}
}

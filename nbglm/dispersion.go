package nbglm

import (
	"fmt"
	"math"

	"github.com/carbocation/pfx"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"

	"github.com/kindlab/rnadiff/countmat"
)

const (
	minDispersion = 1e-4
	maxDispersion = 4.0
)

// QLDispersion is the shared dispersion picture the tests run against: a
// single common negative-binomial dispersion across genes, plus per-gene
// quasi-dispersions shrunk toward their common prior.
type QLDispersion struct {
	Common float64

	// S2 are the raw per-gene quasi-dispersions (residual deviance over
	// residual df); S2Post are their empirical-Bayes moderated versions.
	S2     []float64
	S2Post []float64

	S2Prior float64
	// DFPrior may be +Inf when the raw values show no excess spread.
	DFPrior    float64
	DFResidual float64
}

// EstimateCommonDispersion maximizes the Cox-Reid adjusted profile
// likelihood, summed over genes, on a log-scale grid with golden-section
// refinement. Every evaluation refits all gene GLMs at the candidate
// dispersion.
func EstimateCommonDispersion(m *countmat.Matrix, d *Design, offsets []float64) (float64, error) {
	apl := func(disp float64) float64 {
		total := 0.0
		for _, y := range m.Counts {
			fit, err := fitNB(y, d.X, offsets, disp)
			if err != nil {
				continue
			}
			total += nbLogLikelihood(y, fit.Fitted, disp) - 0.5*logDetInformation(fit, d)
		}
		return total
	}

	logLo := math.Log(minDispersion)
	logHi := math.Log(maxDispersion)

	const gridPoints = 25
	bestIdx, bestVal := 0, math.Inf(-1)
	grid := make([]float64, gridPoints)
	for k := 0; k < gridPoints; k++ {
		grid[k] = logLo + (logHi-logLo)*float64(k)/float64(gridPoints-1)
		if v := apl(math.Exp(grid[k])); v > bestVal {
			bestVal = v
			bestIdx = k
		}
	}

	lo := grid[maxInt(bestIdx-1, 0)]
	hi := grid[minInt(bestIdx+1, gridPoints-1)]

	// Golden-section refinement on the log scale.
	const phi = 0.6180339887498949
	a, b := lo, hi
	c := b - phi*(b-a)
	e := a + phi*(b-a)
	fc, fe := apl(math.Exp(c)), apl(math.Exp(e))
	for iter := 0; iter < 30 && b-a > 1e-4; iter++ {
		if fc > fe {
			b, e, fe = e, c, fc
			c = b - phi*(b-a)
			fc = apl(math.Exp(c))
		} else {
			a, c, fc = c, e, fe
			e = a + phi*(b-a)
			fe = apl(math.Exp(e))
		}
	}

	disp := math.Exp((a + b) / 2)
	if math.IsNaN(disp) {
		return 0, pfx.Err(fmt.Errorf("common dispersion search failed to converge"))
	}
	if disp < minDispersion {
		disp = minDispersion
	}
	if disp > maxDispersion {
		disp = maxDispersion
	}

	return disp, nil
}

// SqueezeQLDispersions computes per-gene quasi-dispersions at the common
// dispersion and moderates them toward a common prior, moment-matching the
// prior df on the log-dispersion spread.
func SqueezeQLDispersions(m *countmat.Matrix, d *Design, offsets []float64, common float64) (*QLDispersion, error) {
	dfResid := d.ResidualDF()
	if dfResid <= 0 {
		return nil, pfx.Err(fmt.Errorf("no residual degrees of freedom"))
	}

	s2 := make([]float64, m.NGenes())
	for g, y := range m.Counts {
		fit, err := fitNB(y, d.X, offsets, common)
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("gene %s: %w", m.GeneIDs[g], err))
		}
		s2[g] = fit.Deviance / dfResid
		if s2[g] < 1e-10 {
			s2[g] = 1e-10
		}
	}

	s2Prior, dfPrior := fitScaledChiSquarePrior(s2, dfResid)

	s2Post := make([]float64, len(s2))
	for g, v := range s2 {
		if math.IsInf(dfPrior, 1) {
			s2Post[g] = s2Prior
			continue
		}
		s2Post[g] = (dfPrior*s2Prior + dfResid*v) / (dfPrior + dfResid)
	}

	return &QLDispersion{
		Common:     common,
		S2:         s2,
		S2Post:     s2Post,
		S2Prior:    s2Prior,
		DFPrior:    dfPrior,
		DFResidual: dfResid,
	}, nil
}

// DFTotal is the denominator degrees of freedom available to the F-tests.
func (q *QLDispersion) DFTotal() float64 {
	return q.DFPrior + q.DFResidual
}

// fitScaledChiSquarePrior moment-matches a scaled inverse-chi-square prior
// to the observed per-gene variances: the spread of log s2 beyond what df
// residual alone explains determines the prior df.
func fitScaledChiSquarePrior(s2 []float64, df float64) (s2Prior, dfPrior float64) {
	n := float64(len(s2))

	// Log-scale bias correction for a chi-square on df degrees of freedom.
	z := make([]float64, len(s2))
	mean := 0.0
	for i, v := range s2 {
		z[i] = math.Log(v) - mathext.Digamma(df/2) + math.Log(df/2)
		mean += z[i]
	}
	mean /= n

	variance := 0.0
	for _, v := range z {
		variance += (v - mean) * (v - mean)
	}
	if n > 1 {
		variance /= n - 1
	}

	excess := variance - trigamma(df/2)
	if excess <= 0 {
		// No spread beyond sampling noise: infinitely strong prior.
		return math.Exp(mean), math.Inf(1)
	}

	dfPrior = 2 * trigammaInverse(excess)
	s2Prior = math.Exp(mean + mathext.Digamma(dfPrior/2) - math.Log(dfPrior/2))
	return s2Prior, dfPrior
}

// trigamma evaluates psi'(x) by recurrence into the asymptotic region.
func trigamma(x float64) float64 {
	out := 0.0
	for x < 6 {
		out += 1 / (x * x)
		x++
	}

	inv := 1 / x
	inv2 := inv * inv
	// Asymptotic expansion of psi'(x).
	out += inv * (1 + 0.5*inv + inv2*(1.0/6-inv2*(1.0/30-inv2*(1.0/42-inv2/30))))
	return out
}

// trigammaInverse solves trigamma(y) = x for y by Newton iteration.
func trigammaInverse(x float64) float64 {
	if x <= 0 {
		return math.Inf(1)
	}
	if x > 1e7 {
		return 1 / math.Sqrt(x)
	}
	if x < 1e-6 {
		return 1 / x
	}

	y := 0.5 + 1/x
	for iter := 0; iter < 50; iter++ {
		tri := trigamma(y)
		dif := tri * (1 - tri/x) / tetragammaApprox(y)
		y += dif
		if math.Abs(dif)/y < 1e-8 {
			break
		}
	}
	return y
}

// tetragammaApprox is the derivative of trigamma, adequate for the Newton
// step above.
func tetragammaApprox(y float64) float64 {
	const h = 1e-4
	return (trigamma(y+h) - trigamma(y-h)) / (2 * h)
}

func logDetInformation(fit *glmFit, d *Design) float64 {
	// CovUnscaled is the inverse information; its log-determinant negated is
	// the Cox-Reid penalty term.
	var chol mat.Cholesky
	if ok := chol.Factorize(fit.CovUnscaled); !ok {
		return 0
	}
	return -chol.LogDet()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Package nbglm fits per-gene negative-binomial generalized linear models
// with a shared quasi-likelihood dispersion and tests the treatment
// coefficient, holding individual of origin fixed.
package nbglm

import (
	"fmt"
	"sort"

	"github.com/carbocation/pfx"
	"gonum.org/v1/gonum/mat"

	"github.com/kindlab/rnadiff/countmat"
)

// Design is the model matrix shared by every gene: an intercept, one
// indicator per originating individual beyond the reference level, and one
// treatment indicator as the last column.
type Design struct {
	X     *mat.Dense
	Names []string

	// TreatCol indexes the treatment coefficient within X.
	TreatCol int

	// TreatmentLevel is the non-reference treatment label the coefficient
	// measures, relative to ReferenceLevel.
	TreatmentLevel string
	ReferenceLevel string
}

// BuildDesign constructs the paired design from the sample metadata.
// Treatment and individual levels are ordered alphabetically with the first
// level of each as the reference. The resulting matrix must be full rank.
func BuildDesign(samples []countmat.SampleInfo) (*Design, error) {
	if len(samples) < 3 {
		return nil, pfx.Err(fmt.Errorf("need at least 3 samples to fit the paired design, have %d", len(samples)))
	}

	treatments := distinctSorted(samples, func(s countmat.SampleInfo) string { return s.Treatment })
	if len(treatments) != 2 {
		return nil, pfx.Err(fmt.Errorf("expected exactly 2 treatment levels, found %v", treatments))
	}

	individuals := distinctSorted(samples, func(s countmat.SampleInfo) string { return s.Individual })
	if len(individuals) < 2 {
		return nil, pfx.Err(fmt.Errorf("need at least 2 individuals, found %v", individuals))
	}

	p := 1 + (len(individuals) - 1) + 1
	names := make([]string, 0, p)
	names = append(names, "(Intercept)")
	for _, ind := range individuals[1:] {
		names = append(names, "individual"+ind)
	}
	names = append(names, "treatment"+treatments[1])

	x := mat.NewDense(len(samples), p, nil)
	for i, s := range samples {
		x.Set(i, 0, 1)
		for k, ind := range individuals[1:] {
			if s.Individual == ind {
				x.Set(i, 1+k, 1)
			}
		}
		if s.Treatment == treatments[1] {
			x.Set(i, p-1, 1)
		}
	}

	d := &Design{
		X:              x,
		Names:          names,
		TreatCol:       p - 1,
		TreatmentLevel: treatments[1],
		ReferenceLevel: treatments[0],
	}

	if err := d.checkFullRank(); err != nil {
		return nil, err
	}

	return d, nil
}

// Null returns the design with the treatment column removed, for the
// reduced-model fit under the no-effect hypothesis.
func (d *Design) Null() *mat.Dense {
	rows, cols := d.X.Dims()
	out := mat.NewDense(rows, cols-1, nil)
	for i := 0; i < rows; i++ {
		jj := 0
		for j := 0; j < cols; j++ {
			if j == d.TreatCol {
				continue
			}
			out.Set(i, jj, d.X.At(i, j))
			jj++
		}
	}
	return out
}

// ResidualDF returns the per-gene residual degrees of freedom under the full
// design.
func (d *Design) ResidualDF() float64 {
	rows, cols := d.X.Dims()
	return float64(rows - cols)
}

func (d *Design) checkFullRank() error {
	rows, cols := d.X.Dims()
	if rows <= cols {
		return pfx.Err(fmt.Errorf("design has %d coefficients but only %d samples; no residual degrees of freedom", cols, rows))
	}

	var svd mat.SVD
	if ok := svd.Factorize(d.X, mat.SVDNone); !ok {
		return pfx.Err(fmt.Errorf("design matrix SVD failed"))
	}

	values := svd.Values(nil)
	if values[len(values)-1] < 1e-10*values[0] {
		return pfx.Err(fmt.Errorf("design matrix is not full rank; a coefficient is confounded (columns: %v)", d.Names))
	}

	return nil
}

func distinctSorted(samples []countmat.SampleInfo, field func(countmat.SampleInfo) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range samples {
		v := field(s)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

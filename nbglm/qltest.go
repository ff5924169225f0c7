package nbglm

import (
	"fmt"
	"log"
	"math"

	"github.com/carbocation/pfx"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kindlab/rnadiff/annot"
	"github.com/kindlab/rnadiff/countmat"
)

// GeneFit is the per-gene state shared by the primary F-test and the
// threshold (treat) re-test.
type GeneFit struct {
	GeneID     string
	Symbol     string
	Chromosome string
	NumericID  int

	AveLogCPM float64

	// Coef is the treatment effect on the natural-log scale; SEUnscaled is
	// its standard error before scaling by the moderated quasi-dispersion.
	Coef       float64
	SEUnscaled float64

	// DevianceDiff is the deviance drop from adding the treatment term.
	DevianceDiff float64

	S2Post float64
}

// FitSet holds every fitted gene together with the design and dispersion
// estimates they were fitted under.
type FitSet struct {
	Design *Design
	Disp   *QLDispersion
	Genes  []GeneFit
}

// Result is one row of a differential expression table.
type Result struct {
	GeneID     string  `csv:"gene_id"`
	Symbol     string  `csv:"symbol"`
	Chromosome string  `csv:"chromosome"`
	NumericID  int     `csv:"numeric_id"`
	LogFC      float64 `csv:"log2_fold_change"`
	AveLogCPM  float64 `csv:"ave_log2_cpm"`
	Stat       float64 `csv:"statistic"`
	PValue     float64 `csv:"p_value"`
	FDR        float64 `csv:"fdr"`
}

// Fit estimates the shared dispersion, then fits the full and reduced model
// for every gene. records must parallel the matrix rows; pass nil when the
// matrix rows carry no annotation.
func Fit(m *countmat.Matrix, records []annot.Record, design *Design, normFactors []float64) (*FitSet, error) {
	if records != nil && len(records) != m.NGenes() {
		return nil, pfx.Err(fmt.Errorf("%d annotation records for %d matrix rows", len(records), m.NGenes()))
	}
	if len(normFactors) != m.NSamples() {
		return nil, pfx.Err(fmt.Errorf("%d norm factors for %d samples", len(normFactors), m.NSamples()))
	}

	libs := m.ColumnSums()
	offsets := make([]float64, m.NSamples())
	for j := range offsets {
		eff := libs[j] * normFactors[j]
		if eff <= 0 {
			return nil, pfx.Err(fmt.Errorf("sample %s has a non-positive effective library size", m.Samples[j].Sample))
		}
		offsets[j] = math.Log(eff)
	}

	log.Println("Estimating common dispersion")
	common, err := EstimateCommonDispersion(m, design, offsets)
	if err != nil {
		return nil, err
	}
	log.Printf("Common dispersion %.4g (BCV %.3f)\n", common, math.Sqrt(common))

	disp, err := SqueezeQLDispersions(m, design, offsets, common)
	if err != nil {
		return nil, err
	}

	aveLogCPM := m.AveLogCPM(libs)
	nullX := design.Null()

	genes := make([]GeneFit, m.NGenes())
	for g, y := range m.Counts {
		full, err := fitNB(y, design.X, offsets, common)
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("gene %s: %w", m.GeneIDs[g], err))
		}
		reduced, err := fitNB(y, nullX, offsets, common)
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("gene %s (reduced model): %w", m.GeneIDs[g], err))
		}

		devDiff := reduced.Deviance - full.Deviance
		if devDiff < 0 {
			devDiff = 0
		}

		gf := GeneFit{
			GeneID:       m.GeneIDs[g],
			AveLogCPM:    aveLogCPM[g],
			Coef:         full.Coef[design.TreatCol],
			SEUnscaled:   math.Sqrt(full.CovUnscaled.At(design.TreatCol, design.TreatCol)),
			DevianceDiff: devDiff,
			S2Post:       disp.S2Post[g],
		}
		if records != nil {
			gf.Symbol = records[g].Symbol
			gf.Chromosome = records[g].Chromosome
			gf.NumericID = records[g].NumericID
		}
		genes[g] = gf
	}

	return &FitSet{Design: design, Disp: disp, Genes: genes}, nil
}

// QLFTest tests the treatment coefficient against zero with a
// quasi-likelihood F-test and returns one result per gene, in matrix row
// order, with BH-adjusted p-values.
func (fs *FitSet) QLFTest() []Result {
	dfTotal := fs.Disp.DFTotal()

	out := make([]Result, len(fs.Genes))
	pvals := make([]float64, len(fs.Genes))
	for g, gene := range fs.Genes {
		f := gene.DevianceDiff / gene.S2Post
		pvals[g] = fTailProbability(f, dfTotal)

		out[g] = Result{
			GeneID:     gene.GeneID,
			Symbol:     gene.Symbol,
			Chromosome: gene.Chromosome,
			NumericID:  gene.NumericID,
			LogFC:      gene.Coef / math.Ln2,
			AveLogCPM:  gene.AveLogCPM,
			Stat:       f,
			PValue:     pvals[g],
		}
	}

	for g, q := range BHAdjust(pvals) {
		out[g].FDR = q
	}

	return out
}

// TreatTest re-tests the already-fitted coefficients against a minimum
// |log2 fold change| threshold instead of zero, suppressing genes whose
// effects are statistically detectable but practically negligible.
func (fs *FitSet) TreatTest(lfcThreshold float64) ([]Result, error) {
	if lfcThreshold < 0 {
		return nil, pfx.Err(fmt.Errorf("negative fold-change threshold %v", lfcThreshold))
	}

	dfTotal := fs.Disp.DFTotal()
	tau := lfcThreshold * math.Ln2

	out := make([]Result, len(fs.Genes))
	pvals := make([]float64, len(fs.Genes))
	for g, gene := range fs.Genes {
		se := gene.SEUnscaled * math.Sqrt(gene.S2Post)
		if se <= 0 || math.IsNaN(se) {
			se = math.SmallestNonzeroFloat64
		}

		left := (math.Abs(gene.Coef) - tau) / se
		right := (math.Abs(gene.Coef) + tau) / se

		p := tTailProbability(left, dfTotal) + tTailProbability(right, dfTotal)
		if p > 1 {
			p = 1
		}
		pvals[g] = p

		out[g] = Result{
			GeneID:     gene.GeneID,
			Symbol:     gene.Symbol,
			Chromosome: gene.Chromosome,
			NumericID:  gene.NumericID,
			LogFC:      gene.Coef / math.Ln2,
			AveLogCPM:  gene.AveLogCPM,
			Stat:       left,
			PValue:     p,
		}
	}

	for g, q := range BHAdjust(pvals) {
		out[g].FDR = q
	}

	return out, nil
}

// ModeratedT returns the per-gene signed moderated t statistic, keyed by
// numeric gene identifier, for downstream competitive gene-set testing.
func (fs *FitSet) ModeratedT() map[int]float64 {
	out := make(map[int]float64, len(fs.Genes))
	for _, gene := range fs.Genes {
		if gene.NumericID == 0 {
			continue
		}
		se := gene.SEUnscaled * math.Sqrt(gene.S2Post)
		if se <= 0 {
			continue
		}
		out[gene.NumericID] = gene.Coef / se
	}
	return out
}

func fTailProbability(f, dfTotal float64) float64 {
	if f <= 0 {
		return 1
	}
	if math.IsInf(dfTotal, 1) {
		chi := distuv.ChiSquared{K: 1}
		return chi.Survival(f)
	}
	dist := distuv.F{D1: 1, D2: dfTotal}
	return dist.Survival(f)
}

func tTailProbability(t, dfTotal float64) float64 {
	if math.IsInf(dfTotal, 1) {
		norm := distuv.Normal{Mu: 0, Sigma: 1}
		return norm.Survival(t)
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dfTotal}
	return dist.Survival(t)
}

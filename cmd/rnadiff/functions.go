package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/carbocation/pfx"

	"github.com/kindlab/rnadiff"
	"github.com/kindlab/rnadiff/annot"
	"github.com/kindlab/rnadiff/countmat"
	"github.com/kindlab/rnadiff/filterexpr"
	"github.com/kindlab/rnadiff/geneset"
	"github.com/kindlab/rnadiff/nbglm"
	"github.com/kindlab/rnadiff/report"
	"github.com/kindlab/rnadiff/tmm"
)

type runConfig struct {
	CountFiles   []string
	SampleSheet  string
	AnnotFile    string
	SetFiles     []string
	OutDir       string
	FDRCutoff    float64
	LFCThreshold float64
	TopN         int
}

func runAll(cfg runConfig) error {
	samples, err := countmat.ReadSampleSheet(rnadiff.ExpandHome(cfg.SampleSheet))
	if err != nil {
		return err
	}

	files := cfg.CountFiles
	if len(files) == 0 {
		for _, s := range samples {
			files = append(files, s.File)
		}
	}
	for i := range files {
		files[i] = rnadiff.ExpandHome(files[i])
	}

	m, err := countmat.Build(files, samples)
	if err != nil {
		return err
	}
	log.Printf("Ingested %d genes across %d samples\n", m.NGenes(), m.NSamples())

	ref, err := annot.LoadReference(rnadiff.ExpandHome(cfg.AnnotFile))
	if err != nil {
		return err
	}
	m, records, err := annot.Annotate(m, ref)
	if err != nil {
		return err
	}
	nIngested := m.NGenes()

	keep, err := filterexpr.Keep(m, filterexpr.DefaultOptions())
	if err != nil {
		return err
	}
	m, records, err = subsetWithRecords(m, records, keep)
	if err != nil {
		return err
	}
	log.Printf("%d genes remain after expression filtering\n", m.NGenes())

	factors, err := tmm.NormFactors(m)
	if err != nil {
		return err
	}
	for j, s := range m.Samples {
		log.Printf("TMM factor %s: %.4f\n", s.Sample, factors[j])
	}

	design, err := nbglm.BuildDesign(m.Samples)
	if err != nil {
		return err
	}

	fits, err := nbglm.Fit(m, records, design, factors)
	if err != nil {
		return err
	}

	results := fits.QLFTest()
	treatResults, err := fits.TreatTest(cfg.LFCThreshold)
	if err != nil {
		return err
	}

	_, primarySummary := nbglm.DecideTests(results, cfg.FDRCutoff)
	_, treatSummary := nbglm.DecideTests(treatResults, cfg.FDRCutoff)

	fmt.Println()
	report.PrintSummary(os.Stdout, design.TreatmentLevel+"_vs_"+design.ReferenceLevel, primarySummary)
	fmt.Println()
	fmt.Println("log2 fold change distribution:")
	if err := report.PrintLogFCHistogram(os.Stdout, results); err != nil {
		return err
	}

	oraResults, cameraResults, err := runGeneSets(cfg, fits, results)
	if err != nil {
		return err
	}

	return writeArtifacts(cfg, m, fits, design, factors, results, treatResults,
		primarySummary, treatSummary, oraResults, cameraResults, nIngested)
}

// subsetWithRecords drops the same rows from the matrix and the parallel
// annotation slice.
func subsetWithRecords(m *countmat.Matrix, records []annot.Record, keep []bool) (*countmat.Matrix, []annot.Record, error) {
	if len(records) != len(keep) {
		return nil, nil, pfx.Err(fmt.Errorf("%d annotation records for %d keep flags", len(records), len(keep)))
	}

	out, err := m.SubsetRows(keep)
	if err != nil {
		return nil, nil, err
	}

	kept := make([]annot.Record, 0, out.NGenes())
	for i, k := range keep {
		if k {
			kept = append(kept, records[i])
		}
	}

	if len(kept) == 0 {
		return nil, nil, pfx.Err(fmt.Errorf("expression filtering removed every gene"))
	}

	return out, kept, nil
}

// runGeneSets runs both enrichment procedures over every supplied
// collection. Set names are prefixed with the collection file's base name so
// collections can share names without colliding.
func runGeneSets(cfg runConfig, fits *nbglm.FitSet, results []nbglm.Result) ([]geneset.ORAResult, []geneset.CameraResult, error) {
	if len(cfg.SetFiles) == 0 {
		return nil, nil, nil
	}

	merged := make(geneset.Collection)
	for _, path := range cfg.SetFiles {
		path = rnadiff.ExpandHome(path)
		coll, err := geneset.LoadCollection(path)
		if err != nil {
			return nil, nil, err
		}

		prefix := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
		for name, members := range coll {
			merged[prefix+":"+name] = members
		}
		log.Printf("Loaded %d gene sets from %s\n", len(coll), path)
	}

	var universe, sig []int
	for _, r := range results {
		universe = append(universe, r.NumericID)
		if r.FDR <= cfg.FDRCutoff {
			sig = append(sig, r.NumericID)
		}
	}

	oraResults := geneset.OverRepresentation(sig, universe, merged)

	cameraResults, err := geneset.Competitive(fits.ModeratedT(), merged, geneset.DefaultInterGeneCor)
	if err != nil {
		return nil, nil, err
	}

	return oraResults, cameraResults, nil
}

func writeArtifacts(cfg runConfig, m *countmat.Matrix, fits *nbglm.FitSet, design *nbglm.Design,
	factors []float64, results, treatResults []nbglm.Result, primarySummary, treatSummary nbglm.Summary,
	oraResults []geneset.ORAResult, cameraResults []geneset.CameraResult, nIngested int) error {

	if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
		return pfx.Err(err)
	}

	paths := map[string]string{
		"topGenes":   filepath.Join(cfg.OutDir, "top_genes.csv"),
		"treatGenes": filepath.Join(cfg.OutDir, "treat_genes.csv"),
		"ora":        filepath.Join(cfg.OutDir, "gene_sets_overrepresented.csv"),
		"camera":     filepath.Join(cfg.OutDir, "gene_sets_competitive.csv"),
		"mds":        filepath.Join(cfg.OutDir, "sample_plot.png"),
		"md":         filepath.Join(cfg.OutDir, "md_plot.png"),
		"bcv":        filepath.Join(cfg.OutDir, "bcv_plot.png"),
		"phist":      filepath.Join(cfg.OutDir, "pvalue_histogram.png"),
		"report":     filepath.Join(cfg.OutDir, "report.md"),
	}

	if err := report.WriteTopGenes(paths["topGenes"], results, cfg.TopN); err != nil {
		return err
	}
	if err := report.WriteTopGenes(paths["treatGenes"], treatResults, cfg.TopN); err != nil {
		return err
	}

	nSigSets, nSigCompetitive := 0, 0
	if len(cfg.SetFiles) > 0 {
		if err := report.WriteSignificantORA(paths["ora"], oraResults, cfg.FDRCutoff); err != nil {
			return err
		}
		if err := report.WriteSignificantCompetitive(paths["camera"], cameraResults, cfg.FDRCutoff); err != nil {
			return err
		}
		for _, r := range oraResults {
			if r.FDR <= cfg.FDRCutoff {
				nSigSets++
			}
		}
		for _, r := range cameraResults {
			if r.FDR <= cfg.FDRCutoff {
				nSigCompetitive++
			}
		}
	} else {
		// No collections were supplied, so no gene set tables exist and
		// the report must not point at them.
		paths["ora"] = ""
		paths["camera"] = ""
	}

	if err := report.PlotMDS(paths["mds"], m); err != nil {
		return err
	}
	if err := report.PlotMD(paths["md"], results, cfg.FDRCutoff); err != nil {
		return err
	}
	if err := report.PlotBCV(paths["bcv"], fits); err != nil {
		return err
	}
	if err := report.PlotPValueHistogram(paths["phist"], results); err != nil {
		return err
	}

	factorsByName := make(map[string]float64, len(factors))
	for j, s := range m.Samples {
		factorsByName[s.Sample] = factors[j]
	}

	summary := report.RunSummary{
		Generated:         time.Now(),
		NSamples:          m.NSamples(),
		NGenesIngested:    nIngested,
		NGenesFiltered:    m.NGenes(),
		TreatmentLevel:    design.TreatmentLevel,
		ReferenceLevel:    design.ReferenceLevel,
		CommonDispersion:  fits.Disp.Common,
		Primary:           primarySummary,
		Treat:             treatSummary,
		LFCThreshold:      cfg.LFCThreshold,
		FDRCutoff:         cfg.FDRCutoff,
		TopGenesCSV:       paths["topGenes"],
		ORACSV:            paths["ora"],
		CompetitiveCSV:    paths["camera"],
		MDSPlot:           paths["mds"],
		MDPlot:            paths["md"],
		BCVPlot:           paths["bcv"],
		PValueHistPlot:    paths["phist"],
		NSignificantSets:  nSigSets,
		NCompetitiveSets:  nSigCompetitive,
		NormFactorsByName: factorsByName,
	}

	if err := report.RenderMarkdown(paths["report"], summary); err != nil {
		return err
	}

	log.Printf("Report written to %s\n", paths["report"])
	return nil
}
